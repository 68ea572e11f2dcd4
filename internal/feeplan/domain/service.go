package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindProfile(ctx context.Context, db *gorm.DB, studentID string, forUpdate bool) (*Profile, error)
	ListInstallments(ctx context.Context, db *gorm.DB, studentID string) ([]Installment, error)
	UpsertProfile(ctx context.Context, db *gorm.DB, profile *Profile) error
	ReplaceInstallments(ctx context.Context, db *gorm.DB, studentID string, items []Installment) error
	ReceivedAmounts(ctx context.Context, db *gorm.DB, studentID string) ([]decimal.Decimal, error)
}

type Service interface {
	Resolve(ctx context.Context, studentID string) (*FeePlan, error)
	// ResolveTx reads the plan inside tx. With forUpdate set the student's
	// profile row stays locked until tx ends.
	ResolveTx(ctx context.Context, tx *gorm.DB, studentID string, forUpdate bool) (*FeePlan, error)
	Sync(ctx context.Context, req SyncRequest) (*FeePlan, error)
}

type SyncRequest struct {
	StudentID    string
	BranchCode   string
	CourseID     string
	TotalFees    decimal.Decimal
	PaymentPlan  string
	Installments []SyncInstallmentRequest
}

type SyncInstallmentRequest struct {
	InstallmentNumber int
	DueAmount         decimal.Decimal
	DueDate           *time.Time
}

var (
	ErrInvalidStudent       = errors.New("invalid_student")
	ErrInvalidTotalFees     = errors.New("invalid_total_fees")
	ErrInvalidPaymentPlan   = errors.New("invalid_payment_plan")
	ErrInvalidInstallment   = errors.New("invalid_installment")
	ErrDuplicateInstallment = errors.New("duplicate_installment")
	ErrScheduleMismatch     = errors.New("schedule_total_mismatch")
	ErrEmptySchedule        = errors.New("empty_schedule")
	ErrTotalBelowReceived   = errors.New("total_fees_below_received")
	ErrNotFound             = errors.New("student_not_found")
	ErrStorageUnavailable   = errors.New("storage_unavailable")
)
