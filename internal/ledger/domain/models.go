package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentMode string

const (
	PaymentModeCash   PaymentMode = "cash"
	PaymentModeCheque PaymentMode = "cheque"
	PaymentModeOnline PaymentMode = "online"
)

// ParsePaymentMode accepts UPI as an alias of online.
func ParsePaymentMode(raw string) (PaymentMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cash":
		return PaymentModeCash, true
	case "cheque", "check":
		return PaymentModeCheque, true
	case "online", "upi":
		return PaymentModeOnline, true
	default:
		return "", false
	}
}

// Receipt is a single recorded payment against a student's fee account.
type Receipt struct {
	ID                snowflake.ID    `gorm:"primaryKey;autoIncrement:false"`
	ReceiptNo         string          `gorm:"type:varchar(128);not null;uniqueIndex:ux_fee_receipts_receipt_no"`
	SequenceScope     string          `gorm:"type:varchar(128);not null;uniqueIndex:ux_fee_receipts_sequence,priority:1"`
	SequenceNo        int64           `gorm:"not null;uniqueIndex:ux_fee_receipts_sequence,priority:2"`
	StudentID         string          `gorm:"type:varchar(64);not null;index"`
	CourseID          string          `gorm:"type:varchar(64);not null;default:''"`
	ReceiptDate       time.Time       `gorm:"type:date;not null;index"`
	AmountPaid        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PaymentMode       PaymentMode     `gorm:"type:varchar(16);not null"`
	BankName          string          `gorm:"type:varchar(255);not null;default:''"`
	ChequeNo          string          `gorm:"type:varchar(64);not null;default:''"`
	ChequeDate        *time.Time      `gorm:"type:date"`
	TransactionID     string          `gorm:"type:varchar(128);not null;default:''"`
	TransactionDate   *time.Time      `gorm:"type:date"`
	Remarks           string          `gorm:"type:varchar(500);not null;default:''"`
	InstallmentNumber *int
	IdempotencyKey    *string    `gorm:"type:varchar(128);uniqueIndex:ux_fee_receipts_idempotency_key"`
	CreatedBy         string     `gorm:"type:varchar(128);not null;default:''"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
	DeletedAt         *time.Time `gorm:"index"`
}

func (Receipt) TableName() string { return "fee_receipts" }

func (r *Receipt) Deleted() bool { return r.DeletedAt != nil }

// ModeDetails carries the instrument fields for non-cash payments.
type ModeDetails struct {
	BankName        string `validate:"max=255"`
	ChequeNo        string `validate:"max=64"`
	ChequeDate      *time.Time
	TransactionID   string `validate:"max=128"`
	TransactionDate *time.Time
}

func (r *Receipt) ModeDetails() ModeDetails {
	return ModeDetails{
		BankName:        r.BankName,
		ChequeNo:        r.ChequeNo,
		ChequeDate:      r.ChequeDate,
		TransactionID:   r.TransactionID,
		TransactionDate: r.TransactionDate,
	}
}

// SetPayment replaces the mode and its instrument fields together.
func (r *Receipt) SetPayment(mode PaymentMode, d ModeDetails) {
	r.PaymentMode = mode
	r.BankName = d.BankName
	r.ChequeNo = d.ChequeNo
	r.ChequeDate = d.ChequeDate
	r.TransactionID = d.TransactionID
	r.TransactionDate = d.TransactionDate
}

type CollectRequest struct {
	StudentID         string `validate:"required,max=64"`
	AmountPaid        decimal.Decimal
	PaymentMode       string `validate:"required"`
	ModeDetails       ModeDetails
	Date              time.Time
	Remarks           string `validate:"max=500"`
	CourseID          string `validate:"max=64"`
	InstallmentNumber *int   `validate:"omitempty,min=1"`
	IdempotencyKey    string `validate:"max=128"`
}

type UpdateRequest struct {
	AmountPaid  *decimal.Decimal
	PaymentMode *string
	ModeDetails *ModeDetails
	Date        *time.Time
	Remarks     *string `validate:"omitempty,max=500"`
}

func (r UpdateRequest) Empty() bool {
	return r.AmountPaid == nil && r.PaymentMode == nil && r.ModeDetails == nil && r.Date == nil && r.Remarks == nil
}

// CollectResult reports the stored receipt and whether it was replayed
// from an earlier request carrying the same idempotency key.
type CollectResult struct {
	Receipt  *Receipt
	Replayed bool
}

type NextReceiptNo struct {
	ReceiptNo  string
	SequenceNo int64
	Scope      string
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
