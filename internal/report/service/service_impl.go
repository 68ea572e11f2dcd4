package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	"github.com/smallbiznis/feeledger/internal/report/domain"
	"github.com/smallbiznis/feeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("report.service"),
		repo: p.Repo,
	}
}

func (s *Service) Report(ctx context.Context, filter domain.Filter) (*domain.Report, error) {
	q, err := normalize(filter)
	if err != nil {
		return nil, err
	}

	receipts, err := s.repo.Search(ctx, s.db, q)
	if err != nil {
		if db.IsUnavailableErr(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		return nil, fmt.Errorf("report store: %w", err)
	}

	report := &domain.Report{
		Receipts:    receipts,
		TotalAmount: decimal.Zero,
		Count:       len(receipts),
		ByMode:      make(map[ledgerdomain.PaymentMode]decimal.Decimal),
	}
	for _, r := range receipts {
		report.TotalAmount = report.TotalAmount.Add(r.AmountPaid)
		report.ByMode[r.PaymentMode] = report.ByMode[r.PaymentMode].Add(r.AmountPaid)
	}

	s.log.Debug("receipt report built",
		zap.String("start_date", q.StartDate.Format("2006-01-02")),
		zap.String("end_date", q.EndDate.Format("2006-01-02")),
		zap.Int("count", report.Count),
	)
	return report, nil
}

func normalize(filter domain.Filter) (domain.Query, error) {
	if filter.StartDate.IsZero() || filter.EndDate.IsZero() {
		return domain.Query{}, domain.ErrMissingDateRange
	}
	q := domain.Query{
		StartDate: ledgerdomain.DateOnly(filter.StartDate),
		EndDate:   ledgerdomain.DateOnly(filter.EndDate),
		ReceiptNo: strings.TrimSpace(filter.ReceiptNo),
		StudentID: strings.TrimSpace(filter.StudentID),
		CourseID:  strings.TrimSpace(filter.CourseID),
	}
	if q.EndDate.Before(q.StartDate) {
		return domain.Query{}, domain.ErrInvalidDateRange
	}
	if raw := strings.TrimSpace(filter.PaymentMode); raw != "" {
		mode, ok := ledgerdomain.ParsePaymentMode(raw)
		if !ok {
			return domain.Query{}, domain.ErrInvalidPaymentMode
		}
		q.PaymentMode = mode
	}
	return q, nil
}
