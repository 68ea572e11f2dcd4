package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	"gorm.io/gorm"
)

type Filter struct {
	StartDate   time.Time
	EndDate     time.Time
	ReceiptNo   string
	PaymentMode string
	StudentID   string
	CourseID    string
}

// Query is a validated Filter. Dates are inclusive calendar days.
type Query struct {
	StartDate   time.Time
	EndDate     time.Time
	ReceiptNo   string
	PaymentMode ledgerdomain.PaymentMode
	StudentID   string
	CourseID    string
}

type Report struct {
	Receipts    []ledgerdomain.Receipt
	TotalAmount decimal.Decimal
	Count       int
	ByMode      map[ledgerdomain.PaymentMode]decimal.Decimal
}

type Repository interface {
	Search(ctx context.Context, db *gorm.DB, q Query) ([]ledgerdomain.Receipt, error)
}

type Service interface {
	Report(ctx context.Context, filter Filter) (*Report, error)
}

var (
	ErrMissingDateRange   = errors.New("missing_date_range")
	ErrInvalidDateRange   = errors.New("invalid_date_range")
	ErrInvalidPaymentMode = errors.New("invalid_payment_mode")
	ErrStorageUnavailable = errors.New("storage_unavailable")
)
