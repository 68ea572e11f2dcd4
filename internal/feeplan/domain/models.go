package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentPlan string

const (
	PaymentPlanOneTime PaymentPlan = "one_time"
	PaymentPlanMonthly PaymentPlan = "monthly"
)

// ParsePaymentPlan accepts the stored values and the display names used by
// the student management UI.
func ParsePaymentPlan(raw string) (PaymentPlan, bool) {
	switch normalizeToken(raw) {
	case "onetime":
		return PaymentPlanOneTime, true
	case "monthly", "emi":
		return PaymentPlanMonthly, true
	default:
		return "", false
	}
}

// Profile is the read-only fee profile owned by student management.
type Profile struct {
	StudentID   string          `gorm:"primaryKey;type:varchar(64)"`
	BranchCode  string          `gorm:"type:varchar(64);not null;default:''"`
	CourseID    string          `gorm:"type:varchar(64);not null;default:''"`
	TotalFees   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PaymentPlan PaymentPlan     `gorm:"type:varchar(16);not null"`
	CreatedAt   time.Time       `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

func (Profile) TableName() string { return "student_fee_profiles" }

type Installment struct {
	ID                snowflake.ID    `gorm:"primaryKey;autoIncrement:false"`
	StudentID         string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_student_installment,priority:1"`
	InstallmentNumber int             `gorm:"not null;uniqueIndex:ux_student_installment,priority:2"`
	DueAmount         decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	DueDate           *time.Time      `gorm:"type:date"`
}

func (Installment) TableName() string { return "student_fee_installments" }

// FeePlan is the resolved view of a profile used by the ledger.
type FeePlan struct {
	StudentID  string                 `json:"student_id"`
	BranchCode string                 `json:"branch_code"`
	CourseID   string                 `json:"course_id"`
	TotalFees  decimal.Decimal        `json:"total_fees"`
	Plan       PaymentPlan            `json:"payment_plan"`
	Schedule   []ScheduledInstallment `json:"emi_schedule"`
}

type ScheduledInstallment struct {
	Number    int             `json:"installment_number"`
	DueAmount decimal.Decimal `json:"due_amount"`
	DueDate   *time.Time      `json:"due_date,omitempty"`
}

// Installment returns the scheduled entry for number.
func (p *FeePlan) Installment(number int) (ScheduledInstallment, bool) {
	for _, item := range p.Schedule {
		if item.Number == number {
			return item, true
		}
	}
	return ScheduledInstallment{}, false
}

// LabelFor names an installment the way receipts print it.
func (p *FeePlan) LabelFor(number int) string {
	if number == AdmissionInstallmentNumber {
		if p.Plan == PaymentPlanOneTime && len(p.Schedule) == 1 {
			return "Full Course Fee"
		}
		return "Admission/Registration Fee"
	}
	return "Installment " + itoa(number-1)
}
