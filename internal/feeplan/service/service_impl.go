package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/config"
	"github.com/smallbiznis/feeledger/internal/feeplan/domain"
	"github.com/smallbiznis/feeledger/internal/lock"
	"github.com/smallbiznis/feeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	Locker       lock.Locker
	LedgerConfig *config.LedgerConfigHolder
	AuditSvc     auditdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	locker       lock.Locker
	ledgerConfig *config.LedgerConfigHolder
	auditSvc     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("feeplan.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		locker:       p.Locker,
		ledgerConfig: p.LedgerConfig,
		auditSvc:     p.AuditSvc,
	}
}

func (s *Service) Resolve(ctx context.Context, studentID string) (*domain.FeePlan, error) {
	return s.resolve(ctx, s.db, studentID, false)
}

func (s *Service) ResolveTx(ctx context.Context, tx *gorm.DB, studentID string, forUpdate bool) (*domain.FeePlan, error) {
	return s.resolve(ctx, tx, studentID, forUpdate)
}

func (s *Service) resolve(ctx context.Context, conn *gorm.DB, studentID string, forUpdate bool) (*domain.FeePlan, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, domain.ErrInvalidStudent
	}

	profile, err := s.repo.FindProfile(ctx, conn, studentID, forUpdate)
	if err != nil {
		return nil, storageErr(err)
	}
	if profile == nil {
		return nil, domain.ErrNotFound
	}

	items, err := s.repo.ListInstallments(ctx, conn, studentID)
	if err != nil {
		return nil, storageErr(err)
	}

	return buildPlan(profile, items), nil
}

// buildPlan turns stored rows into a resolved plan. A profile without a
// schedule has one logical installment covering the whole fee.
func buildPlan(profile *domain.Profile, items []domain.Installment) *domain.FeePlan {
	plan := &domain.FeePlan{
		StudentID:  profile.StudentID,
		BranchCode: profile.BranchCode,
		CourseID:   profile.CourseID,
		TotalFees:  profile.TotalFees,
		Plan:       profile.PaymentPlan,
	}

	if len(items) == 0 {
		plan.Schedule = []domain.ScheduledInstallment{{
			Number:    domain.AdmissionInstallmentNumber,
			DueAmount: profile.TotalFees,
		}}
		return plan
	}

	plan.Schedule = make([]domain.ScheduledInstallment, 0, len(items))
	for _, item := range items {
		plan.Schedule = append(plan.Schedule, domain.ScheduledInstallment{
			Number:    item.InstallmentNumber,
			DueAmount: item.DueAmount,
			DueDate:   item.DueDate,
		})
	}
	sort.Slice(plan.Schedule, func(i, j int) bool {
		return plan.Schedule[i].Number < plan.Schedule[j].Number
	})
	return plan
}

func (s *Service) Sync(ctx context.Context, req domain.SyncRequest) (*domain.FeePlan, error) {
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		return nil, domain.ErrInvalidStudent
	}
	plan, ok := domain.ParsePaymentPlan(req.PaymentPlan)
	if !ok {
		return nil, domain.ErrInvalidPaymentPlan
	}
	if req.TotalFees.IsNegative() || !hasMoneyScale(req.TotalFees) {
		return nil, domain.ErrInvalidTotalFees
	}
	installments, err := validateSchedule(plan, req.TotalFees, req.Installments)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.ledgerConfig.Get().LockTimeout)
	release, err := s.locker.Lock(lockCtx, lock.StudentKey(studentID))
	cancel()
	if err != nil {
		return nil, err
	}
	defer release()

	var result *domain.FeePlan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindProfile(ctx, tx, studentID, true)
		if err != nil {
			return storageErr(err)
		}

		amounts, err := s.repo.ReceivedAmounts(ctx, tx, studentID)
		if err != nil {
			return storageErr(err)
		}
		received := decimal.Sum(decimal.Zero, amounts...)
		if req.TotalFees.LessThan(received) {
			return fmt.Errorf("%w: received %s", domain.ErrTotalBelowReceived, received.StringFixed(2))
		}

		now := time.Now().UTC()
		profile := &domain.Profile{
			StudentID:   studentID,
			BranchCode:  strings.TrimSpace(req.BranchCode),
			CourseID:    strings.TrimSpace(req.CourseID),
			TotalFees:   req.TotalFees.Round(2),
			PaymentPlan: plan,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if existing != nil {
			profile.CreatedAt = existing.CreatedAt
		}
		if err := s.repo.UpsertProfile(ctx, tx, profile); err != nil {
			return storageErr(err)
		}

		rows := make([]domain.Installment, 0, len(installments))
		for _, item := range installments {
			rows = append(rows, domain.Installment{
				ID:                s.genID.Generate(),
				StudentID:         studentID,
				InstallmentNumber: item.InstallmentNumber,
				DueAmount:         item.DueAmount.Round(2),
				DueDate:           dateOnly(item.DueDate),
			})
		}
		if err := s.repo.ReplaceInstallments(ctx, tx, studentID, rows); err != nil {
			return storageErr(err)
		}

		if err := s.auditSvc.AuditLog(ctx, tx, "", nil, auditdomain.ActionProfileSync, auditdomain.TargetProfile, &studentID, map[string]any{
			"total_fees":   profile.TotalFees.StringFixed(2),
			"payment_plan": string(plan),
			"installments": len(rows),
			"created":      existing == nil,
		}); err != nil {
			return err
		}

		result = buildPlan(profile, rows)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("fee profile synced",
		zap.String("student_id", studentID),
		zap.String("payment_plan", string(plan)),
		zap.Int("installments", len(result.Schedule)),
	)
	return result, nil
}

func validateSchedule(plan domain.PaymentPlan, total decimal.Decimal, items []domain.SyncInstallmentRequest) ([]domain.SyncInstallmentRequest, error) {
	if len(items) == 0 {
		if plan == domain.PaymentPlanMonthly {
			return nil, domain.ErrEmptySchedule
		}
		return nil, nil
	}

	seen := make(map[int]struct{}, len(items))
	sum := decimal.Zero
	for _, item := range items {
		if item.InstallmentNumber < 1 {
			return nil, domain.ErrInvalidInstallment
		}
		if item.DueAmount.IsNegative() || !hasMoneyScale(item.DueAmount) {
			return nil, domain.ErrInvalidInstallment
		}
		if _, dup := seen[item.InstallmentNumber]; dup {
			return nil, domain.ErrDuplicateInstallment
		}
		seen[item.InstallmentNumber] = struct{}{}
		sum = sum.Add(item.DueAmount)
	}
	if !sum.Equal(total) {
		return nil, fmt.Errorf("%w: schedule %s, total %s", domain.ErrScheduleMismatch, sum.StringFixed(2), total.StringFixed(2))
	}

	sorted := append([]domain.SyncInstallmentRequest(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].InstallmentNumber < sorted[j].InstallmentNumber
	})
	return sorted, nil
}

func hasMoneyScale(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	out := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &out
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if db.IsUnavailableErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("fee profile store: %w", err)
}
