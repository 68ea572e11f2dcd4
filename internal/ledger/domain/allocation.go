package domain

import (
	"github.com/shopspring/decimal"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
)

// Payment is the part of a receipt that installment attribution reads.
type Payment struct {
	Amount            decimal.Decimal
	InstallmentNumber *int
	Remarks           string
}

func PaymentOf(r *Receipt) Payment {
	return Payment{Amount: r.AmountPaid, InstallmentNumber: r.InstallmentNumber, Remarks: r.Remarks}
}

type InstallmentPosition struct {
	Number    int
	DueAmount decimal.Decimal
	Paid      decimal.Decimal
}

func (p InstallmentPosition) Remaining() decimal.Decimal {
	rem := p.DueAmount.Sub(p.Paid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

func (p InstallmentPosition) Filled() bool {
	return !p.Paid.LessThan(p.DueAmount)
}

// Positions attributes payments to the plan's installments.
//
// A receipt carrying an installment number that exists in the schedule
// counts entirely toward that installment. Rows recorded without a number
// go to the admission installment when their remarks say so. Everything
// else fills the schedule in order, and any leftover lands on the last
// installment.
func Positions(plan *feeplandomain.FeePlan, payments []Payment) []InstallmentPosition {
	positions := make([]InstallmentPosition, len(plan.Schedule))
	index := make(map[int]int, len(plan.Schedule))
	for i, item := range plan.Schedule {
		positions[i] = InstallmentPosition{Number: item.Number, DueAmount: item.DueAmount, Paid: decimal.Zero}
		index[item.Number] = i
	}
	if len(positions) == 0 {
		return positions
	}

	var unattributed []decimal.Decimal
	for _, p := range payments {
		if p.InstallmentNumber != nil {
			if i, ok := index[*p.InstallmentNumber]; ok {
				positions[i].Paid = positions[i].Paid.Add(p.Amount)
				continue
			}
		} else if feeplandomain.Classify(nil, p.Remarks) == feeplandomain.KindAdmissionFee {
			if i, ok := index[feeplandomain.AdmissionInstallmentNumber]; ok {
				positions[i].Paid = positions[i].Paid.Add(p.Amount)
				continue
			}
		}
		unattributed = append(unattributed, p.Amount)
	}

	for _, amount := range unattributed {
		left := amount
		for i := range positions {
			if !left.IsPositive() {
				break
			}
			take := decimal.Min(left, positions[i].Remaining())
			if take.IsPositive() {
				positions[i].Paid = positions[i].Paid.Add(take)
				left = left.Sub(take)
			}
		}
		if left.IsPositive() {
			last := len(positions) - 1
			positions[last].Paid = positions[last].Paid.Add(left)
		}
	}
	return positions
}

// NextInstallment is the first installment not yet fully paid. When every
// installment is filled it falls back to the last one.
func NextInstallment(positions []InstallmentPosition) (int, bool) {
	if len(positions) == 0 {
		return 0, false
	}
	for _, p := range positions {
		if !p.Filled() {
			return p.Number, true
		}
	}
	return positions[len(positions)-1].Number, true
}

// Received sums the amounts of payments.
func Received(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Outstanding is total minus received, never negative.
func Outstanding(total, received decimal.Decimal) decimal.Decimal {
	out := total.Sub(received)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// HasMoneyScale reports whether v has at most two fractional digits.
func HasMoneyScale(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}
