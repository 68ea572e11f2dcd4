package server

import (
	"time"

	"github.com/shopspring/decimal"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	reportdomain "github.com/smallbiznis/feeledger/internal/report/domain"
	statementdomain "github.com/smallbiznis/feeledger/internal/statement/domain"
)

// money renders amounts with exactly two decimals.
func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(dateOnlyLayout)
	return &s
}

type receiptResponse struct {
	ID                string  `json:"id"`
	ReceiptNo         string  `json:"receipt_no"`
	StudentID         string  `json:"student_id"`
	CourseID          string  `json:"course_id,omitempty"`
	Date              string  `json:"date"`
	AmountPaid        string  `json:"amount_paid"`
	PaymentMode       string  `json:"payment_mode"`
	BankName          string  `json:"bank_name,omitempty"`
	ChequeNo          string  `json:"cheque_no,omitempty"`
	ChequeDate        *string `json:"cheque_date,omitempty"`
	TransactionID     string  `json:"transaction_id,omitempty"`
	TransactionDate   *string `json:"transaction_date,omitempty"`
	Remarks           string  `json:"remarks,omitempty"`
	InstallmentNumber *int    `json:"installment_number,omitempty"`
	InstallmentLabel  string  `json:"installment_label,omitempty"`
	CreatedBy         string  `json:"created_by,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

func newReceiptResponse(r *ledgerdomain.Receipt) receiptResponse {
	return receiptResponse{
		ID:                r.ID.String(),
		ReceiptNo:         r.ReceiptNo,
		StudentID:         r.StudentID,
		CourseID:          r.CourseID,
		Date:              r.ReceiptDate.UTC().Format(dateOnlyLayout),
		AmountPaid:        money(r.AmountPaid),
		PaymentMode:       string(r.PaymentMode),
		BankName:          r.BankName,
		ChequeNo:          r.ChequeNo,
		ChequeDate:        dateString(r.ChequeDate),
		TransactionID:     r.TransactionID,
		TransactionDate:   dateString(r.TransactionDate),
		Remarks:           r.Remarks,
		InstallmentNumber: r.InstallmentNumber,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type nextReceiptNoResponse struct {
	ReceiptNo  string `json:"receipt_no"`
	SequenceNo int64  `json:"sequence_no"`
	Scope      string `json:"scope"`
}

type installmentResponse struct {
	InstallmentNumber int     `json:"installment_number"`
	Label             string  `json:"label"`
	DueAmount         string  `json:"due_amount"`
	DueDate           *string `json:"due_date,omitempty"`
	PaidAmount        string  `json:"paid_amount"`
	RemainingAmount   string  `json:"remaining_amount"`
	Status            string  `json:"status"`
}

type summaryResponse struct {
	StudentID         string                `json:"student_id"`
	TotalFees         string                `json:"total_fees"`
	TotalReceived     string                `json:"total_received"`
	DueAmount         string                `json:"due_amount"`
	OutstandingAmount string                `json:"outstanding_amount"`
	FeesMethod        string                `json:"fees_method"`
	EMIStructure      []installmentResponse `json:"emi_structure"`
	AdmissionFeePaid  bool                  `json:"admission_fee_paid"`
}

func newSummaryResponse(s *statementdomain.Summary) summaryResponse {
	rows := make([]installmentResponse, 0, len(s.EMIStructure))
	for _, row := range s.EMIStructure {
		rows = append(rows, installmentResponse{
			InstallmentNumber: row.InstallmentNumber,
			Label:             row.Label,
			DueAmount:         money(row.DueAmount),
			DueDate:           dateString(row.DueDate),
			PaidAmount:        money(row.PaidAmount),
			RemainingAmount:   money(row.RemainingAmount),
			Status:            string(row.Status),
		})
	}
	return summaryResponse{
		StudentID:         s.StudentID,
		TotalFees:         money(s.TotalFees),
		TotalReceived:     money(s.TotalReceived),
		DueAmount:         money(s.DueAmount),
		OutstandingAmount: money(s.OutstandingAmount),
		FeesMethod:        string(s.FeesMethod),
		EMIStructure:      rows,
		AdmissionFeePaid:  s.AdmissionFeePaid,
	}
}

type historyEntryResponse struct {
	receiptResponse
	Kind string `json:"kind"`
}

func newHistoryResponse(entries []statementdomain.HistoryEntry) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for i := range entries {
		r := newReceiptResponse(&entries[i].Receipt)
		r.InstallmentLabel = entries[i].InstallmentLabel
		out = append(out, historyEntryResponse{receiptResponse: r, Kind: string(entries[i].Kind)})
	}
	return out
}

type reportResponse struct {
	Receipts    []receiptResponse `json:"receipts"`
	TotalAmount string            `json:"total_amount"`
	Count       int               `json:"count"`
	ByMode      map[string]string `json:"by_mode"`
}

func newReportResponse(r *reportdomain.Report) reportResponse {
	receipts := make([]receiptResponse, 0, len(r.Receipts))
	for i := range r.Receipts {
		receipts = append(receipts, newReceiptResponse(&r.Receipts[i]))
	}
	byMode := make(map[string]string, len(r.ByMode))
	for mode, total := range r.ByMode {
		byMode[string(mode)] = money(total)
	}
	return reportResponse{
		Receipts:    receipts,
		TotalAmount: money(r.TotalAmount),
		Count:       r.Count,
		ByMode:      byMode,
	}
}

type scheduleResponse struct {
	InstallmentNumber int     `json:"installment_number"`
	Label             string  `json:"label"`
	DueAmount         string  `json:"due_amount"`
	DueDate           *string `json:"due_date,omitempty"`
}

type feePlanResponse struct {
	StudentID   string             `json:"student_id"`
	BranchCode  string             `json:"branch_code,omitempty"`
	CourseID    string             `json:"course_id,omitempty"`
	TotalFees   string             `json:"total_fees"`
	PaymentPlan string             `json:"payment_plan"`
	EMISchedule []scheduleResponse `json:"emi_schedule"`
}

func newFeePlanResponse(p *feeplandomain.FeePlan) feePlanResponse {
	schedule := make([]scheduleResponse, 0, len(p.Schedule))
	for _, item := range p.Schedule {
		schedule = append(schedule, scheduleResponse{
			InstallmentNumber: item.Number,
			Label:             p.LabelFor(item.Number),
			DueAmount:         money(item.DueAmount),
			DueDate:           dateString(item.DueDate),
		})
	}
	return feePlanResponse{
		StudentID:   p.StudentID,
		BranchCode:  p.BranchCode,
		CourseID:    p.CourseID,
		TotalFees:   money(p.TotalFees),
		PaymentPlan: string(p.Plan),
		EMISchedule: schedule,
	}
}
