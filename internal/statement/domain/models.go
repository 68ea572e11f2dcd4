package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
)

type InstallmentStatus string

const (
	StatusPaid     InstallmentStatus = "paid"
	StatusPartial  InstallmentStatus = "partial"
	StatusDue      InstallmentStatus = "due"
	StatusUpcoming InstallmentStatus = "upcoming"
)

type Summary struct {
	StudentID         string
	TotalFees         decimal.Decimal
	TotalReceived     decimal.Decimal
	DueAmount         decimal.Decimal
	OutstandingAmount decimal.Decimal
	FeesMethod        feeplandomain.PaymentPlan
	EMIStructure      []InstallmentRow
	AdmissionFeePaid  bool
}

type InstallmentRow struct {
	InstallmentNumber int
	Label             string
	DueAmount         decimal.Decimal
	DueDate           *time.Time
	PaidAmount        decimal.Decimal
	RemainingAmount   decimal.Decimal
	Status            InstallmentStatus
}

// HistoryEntry is a receipt with the installment it was counted toward.
type HistoryEntry struct {
	Receipt          ledgerdomain.Receipt
	InstallmentLabel string
	Kind             feeplandomain.InstallmentKind
}

type Service interface {
	Summary(ctx context.Context, studentID string) (*Summary, error)
	// History lists non-deleted receipts, most recent first.
	History(ctx context.Context, studentID string) ([]HistoryEntry, error)
}
