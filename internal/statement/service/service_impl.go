package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/feeledger/internal/clock"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	"github.com/smallbiznis/feeledger/internal/statement/domain"
	"github.com/smallbiznis/feeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	FeePlanSvc feeplandomain.Service
	LedgerRepo ledgerdomain.Repository
	Clock      clock.Clock `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	feePlanSvc feeplandomain.Service
	ledgerRepo ledgerdomain.Repository
	clock      clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("statement.service"),
		feePlanSvc: p.FeePlanSvc,
		ledgerRepo: p.LedgerRepo,
		clock:      clk,
	}
}

// snapshot reads the plan and the active receipts in one transaction so
// both views agree.
func (s *Service) snapshot(ctx context.Context, studentID string) (*feeplandomain.FeePlan, []ledgerdomain.Receipt, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, nil, feeplandomain.ErrInvalidStudent
	}

	var (
		plan     *feeplandomain.FeePlan
		receipts []ledgerdomain.Receipt
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		plan, err = s.feePlanSvc.ResolveTx(ctx, tx, studentID, false)
		if err != nil {
			return err
		}
		receipts, err = s.ledgerRepo.ListActiveByStudent(ctx, tx, studentID)
		if err != nil {
			if db.IsUnavailableErr(err) {
				return fmt.Errorf("%w: %v", ledgerdomain.ErrStorageUnavailable, err)
			}
			return fmt.Errorf("fee receipt store: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return plan, receipts, nil
}

func (s *Service) Summary(ctx context.Context, studentID string) (*domain.Summary, error) {
	plan, receipts, err := s.snapshot(ctx, studentID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(plan, receipts, ledgerdomain.DateOnly(s.clock.Now()))
	s.log.Debug("payment summary computed",
		zap.String("student_id", summary.StudentID),
		zap.Int("receipts", len(receipts)),
		zap.String("outstanding", summary.OutstandingAmount.StringFixed(2)),
	)
	return summary, nil
}

// Summarize computes the balance view of plan as of today.
func Summarize(plan *feeplandomain.FeePlan, receipts []ledgerdomain.Receipt, today time.Time) *domain.Summary {
	payments := make([]ledgerdomain.Payment, 0, len(receipts))
	for i := range receipts {
		payments = append(payments, ledgerdomain.PaymentOf(&receipts[i]))
	}
	received := ledgerdomain.Received(payments)
	outstanding := ledgerdomain.Outstanding(plan.TotalFees, received)

	positions := ledgerdomain.Positions(plan, payments)
	rows := make([]domain.InstallmentRow, 0, len(positions))
	payable := decimal.Zero
	admissionPaid := false
	for i, pos := range positions {
		item := plan.Schedule[i]
		payableNow := item.DueDate == nil || !ledgerdomain.DateOnly(*item.DueDate).After(today)
		if payableNow {
			payable = payable.Add(item.DueAmount)
		}

		status := domain.StatusUpcoming
		switch {
		case pos.Filled():
			status = domain.StatusPaid
		case pos.Paid.IsPositive():
			status = domain.StatusPartial
		case payableNow:
			status = domain.StatusDue
		}
		if pos.Number == feeplandomain.AdmissionInstallmentNumber && pos.Filled() {
			admissionPaid = true
		}

		rows = append(rows, domain.InstallmentRow{
			InstallmentNumber: pos.Number,
			Label:             plan.LabelFor(pos.Number),
			DueAmount:         pos.DueAmount,
			DueDate:           item.DueDate,
			PaidAmount:        pos.Paid,
			RemainingAmount:   pos.Remaining(),
			Status:            status,
		})
	}

	due := outstanding
	if plan.Plan != feeplandomain.PaymentPlanOneTime {
		due = payable.Sub(received)
		if due.IsNegative() {
			due = decimal.Zero
		}
		if due.GreaterThan(outstanding) {
			due = outstanding
		}
	}

	return &domain.Summary{
		StudentID:         plan.StudentID,
		TotalFees:         plan.TotalFees,
		TotalReceived:     received,
		DueAmount:         due,
		OutstandingAmount: outstanding,
		FeesMethod:        plan.Plan,
		EMIStructure:      rows,
		AdmissionFeePaid:  admissionPaid,
	}
}

func (s *Service) History(ctx context.Context, studentID string) ([]domain.HistoryEntry, error) {
	plan, receipts, err := s.snapshot(ctx, studentID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.HistoryEntry, 0, len(receipts))
	for _, r := range receipts {
		kind := feeplandomain.Classify(r.InstallmentNumber, r.Remarks)
		label := ""
		switch {
		case r.InstallmentNumber != nil:
			label = plan.LabelFor(*r.InstallmentNumber)
		case kind == feeplandomain.KindAdmissionFee:
			label = plan.LabelFor(feeplandomain.AdmissionInstallmentNumber)
		}
		entries = append(entries, domain.HistoryEntry{Receipt: r, InstallmentLabel: label, Kind: kind})
	}
	return entries, nil
}
