package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/feeledger/internal/clock"
	"github.com/smallbiznis/feeledger/internal/config"
	obsmetrics "github.com/smallbiznis/feeledger/internal/observability/metrics"
	"github.com/smallbiznis/feeledger/internal/sequence/domain"
	"github.com/smallbiznis/feeledger/internal/sequence/format"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Repo         domain.Repository
	LedgerConfig *config.LedgerConfigHolder
	Clock        clock.Clock              `optional:"true"`
	StoreMetrics *obsmetrics.StoreMetrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	repo         domain.Repository
	ledgerConfig *config.LedgerConfigHolder
	clock        clock.Clock
	storeMetrics *obsmetrics.StoreMetrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("sequence.service"),
		repo:         p.Repo,
		ledgerConfig: p.LedgerConfig,
		clock:        clk,
		storeMetrics: p.StoreMetrics,
	}
}

func (s *Service) Allocate(ctx context.Context, tx *gorm.DB, scope string) (int64, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, domain.ErrInvalidScope
	}
	if tx == nil {
		return 0, fmt.Errorf("%w: allocation requires a transaction", domain.ErrAllocatorUnavailable)
	}

	if err := s.repo.Ensure(ctx, tx, scope); err != nil {
		return 0, s.unavailable("ensure", err)
	}

	start := time.Now()
	row, err := s.repo.LockForUpdate(ctx, tx, scope)
	if err != nil {
		return 0, s.unavailable("lock", err)
	}
	s.storeMetrics.ObserveLockWait(obsmetrics.LockResourceSequence, time.Since(start))
	if row == nil {
		return 0, s.unavailable("lock", gorm.ErrRecordNotFound)
	}

	next, err := s.repo.Increment(ctx, tx, scope)
	if err != nil {
		return 0, s.unavailable("increment", err)
	}
	if next != row.Value+1 {
		// the row lock makes this unreachable unless the store ignores it
		return 0, s.unavailable("increment", fmt.Errorf("sequence %s moved from %d to %d", scope, row.Value, next))
	}
	return next, nil
}

func (s *Service) Peek(ctx context.Context, scope string) (int64, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, domain.ErrInvalidScope
	}

	row, err := s.repo.Find(ctx, s.db, scope)
	if err != nil {
		return 0, s.unavailable("peek", err)
	}
	if row == nil {
		return 1, nil
	}
	return row.Value + 1, nil
}

func (s *Service) Scope(branchCode string) (domain.Scope, error) {
	cfg := s.ledgerConfig.Get()
	if cfg.SequenceScope != config.SequenceScopeBranch {
		return domain.Scope{Key: domain.InstituteScopeKey, Code: domain.InstituteScopeCode}, nil
	}

	code := slug.Make(strings.TrimSpace(branchCode))
	// a branch rendering as the institute code would reuse its numbers
	if code == "" || strings.EqualFold(code, domain.InstituteScopeCode) {
		return domain.Scope{}, domain.ErrInvalidBranch
	}
	return domain.Scope{
		Key:  domain.BranchScopePrefix + code,
		Code: strings.ToUpper(code),
	}, nil
}

func (s *Service) Format(scope domain.Scope, seq int64) (string, error) {
	cfg := s.ledgerConfig.Get()
	template := cfg.ReceiptNumberTemplate
	if template == "" {
		template = format.DefaultReceiptNumberTemplate
	}
	return format.FormatReceiptNumber(template, s.clock.Now(), scope.Code, seq)
}

func (s *Service) unavailable(step string, err error) error {
	s.storeMetrics.RecordStoreError("sequence."+step, err)
	s.log.Warn("receipt sequence store failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", domain.ErrAllocatorUnavailable, step, err)
}
