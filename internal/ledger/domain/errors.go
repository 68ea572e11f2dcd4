package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStudent      = errors.New("invalid_student")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidPaymentMode  = errors.New("invalid_payment_mode")
	ErrInvalidDate         = errors.New("invalid_date")
	ErrInvalidInstallment  = errors.New("invalid_installment")
	ErrInvalidReceiptID    = errors.New("invalid_receipt_id")
	ErrInvalidUpdate       = errors.New("invalid_update")
	ErrInvalidModeDetails  = errors.New("invalid_mode_details")
	ErrOverpaymentRejected = errors.New("overpayment_rejected")
	ErrIdempotencyConflict = errors.New("idempotency_key_conflict")
	ErrReceiptNoCollision  = errors.New("receipt_number_collision")
	ErrNotFound            = errors.New("receipt_not_found")
	ErrStorageUnavailable  = errors.New("storage_unavailable")
)

// ModeDetailsError lists the instrument fields a payment mode is missing.
type ModeDetailsError struct {
	Mode    PaymentMode
	Missing []string
}

func (e *ModeDetailsError) Error() string {
	return fmt.Sprintf("invalid_mode_details: %s requires %s", e.Mode, strings.Join(e.Missing, ", "))
}

func (e *ModeDetailsError) Unwrap() error { return ErrInvalidModeDetails }

// OverpaymentError is returned when a payment would push the amount
// received past the student's total fees.
type OverpaymentError struct {
	Outstanding decimal.Decimal
	Attempted   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("overpayment_rejected: amount %s exceeds outstanding %s",
		e.Attempted.StringFixed(2), e.Outstanding.StringFixed(2))
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpaymentRejected }

// ValidateModeDetails checks the fields each payment mode requires.
// Cheque needs bank name, cheque number and cheque date; online needs a
// bank name, transaction id and transaction date.
func ValidateModeDetails(mode PaymentMode, d ModeDetails) error {
	var missing []string
	switch mode {
	case PaymentModeCash:
		return nil
	case PaymentModeCheque:
		if strings.TrimSpace(d.BankName) == "" {
			missing = append(missing, "bank_name")
		}
		if strings.TrimSpace(d.ChequeNo) == "" {
			missing = append(missing, "cheque_no")
		}
		if d.ChequeDate == nil {
			missing = append(missing, "cheque_date")
		}
	case PaymentModeOnline:
		if strings.TrimSpace(d.BankName) == "" {
			missing = append(missing, "bank_name")
		}
		if strings.TrimSpace(d.TransactionID) == "" {
			missing = append(missing, "transaction_id")
		}
		if d.TransactionDate == nil {
			missing = append(missing, "transaction_date")
		}
	default:
		return ErrInvalidPaymentMode
	}
	if len(missing) > 0 {
		return &ModeDetailsError{Mode: mode, Missing: missing}
	}
	return nil
}

// NormalizeModeDetails trims text fields, drops fields that do not apply
// to mode, and truncates dates.
func NormalizeModeDetails(mode PaymentMode, d ModeDetails) ModeDetails {
	out := ModeDetails{}
	switch mode {
	case PaymentModeCheque:
		out.BankName = strings.TrimSpace(d.BankName)
		out.ChequeNo = strings.TrimSpace(d.ChequeNo)
		out.ChequeDate = dateOnlyPtr(d.ChequeDate)
	case PaymentModeOnline:
		out.BankName = strings.TrimSpace(d.BankName)
		out.TransactionID = strings.TrimSpace(d.TransactionID)
		out.TransactionDate = dateOnlyPtr(d.TransactionDate)
	}
	return out
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := DateOnly(*t)
	return &v
}
