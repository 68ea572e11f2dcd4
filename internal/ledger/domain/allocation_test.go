package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func intPtr(v int) *int { return &v }

func monthlyPlan() *feeplandomain.FeePlan {
	plan := &feeplandomain.FeePlan{
		StudentID: "S-1",
		TotalFees: d("12000"),
		Plan:      feeplandomain.PaymentPlanMonthly,
		Schedule:  []feeplandomain.ScheduledInstallment{{Number: 1, DueAmount: d("2000")}},
	}
	for i := 2; i <= 11; i++ {
		plan.Schedule = append(plan.Schedule, feeplandomain.ScheduledInstallment{Number: i, DueAmount: d("1000")})
	}
	return plan
}

func TestPositions_AttributedReceipts(t *testing.T) {
	plan := monthlyPlan()
	positions := Positions(plan, []Payment{
		{Amount: d("2000"), InstallmentNumber: intPtr(1)},
		{Amount: d("500"), InstallmentNumber: intPtr(2)},
	})

	require.Len(t, positions, 11)
	assert.True(t, positions[0].Filled())
	assert.True(t, positions[1].Paid.Equal(d("500")))
	assert.True(t, positions[1].Remaining().Equal(d("500")))

	next, ok := NextInstallment(positions)
	require.True(t, ok)
	assert.Equal(t, 2, next)
}

func TestPositions_OverpaidInstallmentDoesNotSpill(t *testing.T) {
	positions := Positions(monthlyPlan(), []Payment{
		{Amount: d("2500"), InstallmentNumber: intPtr(1)},
	})

	assert.True(t, positions[0].Paid.Equal(d("2500")))
	assert.True(t, positions[0].Remaining().IsZero())
	assert.True(t, positions[1].Paid.IsZero())
}

func TestPositions_LegacyAdmissionRemarks(t *testing.T) {
	positions := Positions(monthlyPlan(), []Payment{
		{Amount: d("1000"), Remarks: "Registration fee at counter"},
		{Amount: d("1000"), Remarks: "ADMISSION balance"},
	})

	assert.True(t, positions[0].Paid.Equal(d("2000")))
	assert.True(t, positions[1].Paid.IsZero())
}

func TestPositions_LegacyWithoutMarkerFillsInOrder(t *testing.T) {
	positions := Positions(monthlyPlan(), []Payment{
		{Amount: d("2000"), InstallmentNumber: intPtr(1)},
		{Amount: d("1500"), Remarks: "cash"},
		{Amount: d("300"), InstallmentNumber: intPtr(99)},
	})

	assert.True(t, positions[1].Paid.Equal(d("1000")))
	assert.True(t, positions[2].Paid.Equal(d("800")))

	next, _ := NextInstallment(positions)
	assert.Equal(t, 3, next)
}

func TestPositions_LeftoverLandsOnLastInstallment(t *testing.T) {
	plan := &feeplandomain.FeePlan{
		TotalFees: d("1000"),
		Schedule: []feeplandomain.ScheduledInstallment{
			{Number: 1, DueAmount: d("400")},
			{Number: 2, DueAmount: d("600")},
		},
	}
	positions := Positions(plan, []Payment{{Amount: d("1200")}})

	assert.True(t, positions[0].Paid.Equal(d("400")))
	assert.True(t, positions[1].Paid.Equal(d("800")))

	next, ok := NextInstallment(positions)
	require.True(t, ok)
	assert.Equal(t, 2, next)
}

func TestNextInstallment_EmptySchedule(t *testing.T) {
	_, ok := NextInstallment(nil)
	assert.False(t, ok)
}

func TestOutstanding_NeverNegative(t *testing.T) {
	assert.True(t, Outstanding(d("100"), d("150")).IsZero())
	assert.True(t, Outstanding(d("100"), d("30.50")).Equal(d("69.50")))
	assert.True(t, Received([]Payment{{Amount: d("0.10")}, {Amount: d("0.20")}}).Equal(d("0.30")))
}

func TestValidateModeDetails(t *testing.T) {
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, ValidateModeDetails(PaymentModeCash, ModeDetails{}))
	assert.NoError(t, ValidateModeDetails(PaymentModeCheque, ModeDetails{BankName: "SBI", ChequeNo: "123456", ChequeDate: &date}))
	assert.NoError(t, ValidateModeDetails(PaymentModeOnline, ModeDetails{BankName: "HDFC", TransactionID: "UTR1", TransactionDate: &date}))

	err := ValidateModeDetails(PaymentModeCheque, ModeDetails{BankName: "SBI"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidModeDetails))
	var detailsErr *ModeDetailsError
	require.True(t, errors.As(err, &detailsErr))
	assert.Equal(t, []string{"cheque_no", "cheque_date"}, detailsErr.Missing)

	err = ValidateModeDetails(PaymentModeOnline, ModeDetails{TransactionID: "  "})
	require.True(t, errors.As(err, &detailsErr))
	assert.Equal(t, []string{"bank_name", "transaction_id", "transaction_date"}, detailsErr.Missing)

	assert.ErrorIs(t, ValidateModeDetails(PaymentMode("barter"), ModeDetails{}), ErrInvalidPaymentMode)
}

func TestNormalizeModeDetails_DropsFieldsForMode(t *testing.T) {
	at := time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)
	in := ModeDetails{BankName: " SBI ", ChequeNo: "9", ChequeDate: &at, TransactionID: "T", TransactionDate: &at}

	assert.Equal(t, ModeDetails{}, NormalizeModeDetails(PaymentModeCash, in))

	cheque := NormalizeModeDetails(PaymentModeCheque, in)
	assert.Equal(t, "SBI", cheque.BankName)
	assert.Empty(t, cheque.TransactionID)
	require.NotNil(t, cheque.ChequeDate)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *cheque.ChequeDate)
}

func TestParsePaymentMode(t *testing.T) {
	cases := map[string]PaymentMode{
		"Cash":   PaymentModeCash,
		"cheque": PaymentModeCheque,
		"UPI":    PaymentModeOnline,
		"Online": PaymentModeOnline,
	}
	for raw, want := range cases {
		got, ok := ParsePaymentMode(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParsePaymentMode("card")
	assert.False(t, ok)
}

func TestOverpaymentError(t *testing.T) {
	err := error(&OverpaymentError{Outstanding: d("8000"), Attempted: d("9000")})
	assert.ErrorIs(t, err, ErrOverpaymentRejected)
	assert.Contains(t, err.Error(), "8000.00")
}
