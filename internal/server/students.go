package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
)

type syncInstallmentRequest struct {
	InstallmentNumber int             `json:"installment_number"`
	DueAmount         decimal.Decimal `json:"due_amount"`
	DueDate           string          `json:"due_date"`
}

type syncFeeProfileRequest struct {
	BranchCode  string                   `json:"branch_code"`
	CourseID    string                   `json:"course_id"`
	TotalFees   decimal.Decimal          `json:"total_fees"`
	PaymentPlan string                   `json:"payment_plan"`
	EMISchedule []syncInstallmentRequest `json:"emi_schedule"`
}

func (s *Server) PaymentSummary(c *gin.Context) {
	summary, err := s.statementSvc.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newSummaryResponse(summary)})
}

func (s *Server) PaymentHistory(c *gin.Context) {
	entries, err := s.statementSvc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newHistoryResponse(entries)})
}

// SyncFeeProfile replaces a student's fee profile with the one held by
// student management.
func (s *Server) SyncFeeProfile(c *gin.Context) {
	var req syncFeeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]feeplandomain.SyncInstallmentRequest, 0, len(req.EMISchedule))
	for _, item := range req.EMISchedule {
		dueDate, err := parseOptionalDate(item.DueDate)
		if err != nil {
			AbortWithError(c, newValidationError("due_date", "invalid_due_date", "due_date must be YYYY-MM-DD"))
			return
		}
		items = append(items, feeplandomain.SyncInstallmentRequest{
			InstallmentNumber: item.InstallmentNumber,
			DueAmount:         item.DueAmount,
			DueDate:           dueDate,
		})
	}

	plan, err := s.feePlanSvc.Sync(c.Request.Context(), feeplandomain.SyncRequest{
		StudentID:    c.Param("id"),
		BranchCode:   req.BranchCode,
		CourseID:     req.CourseID,
		TotalFees:    req.TotalFees,
		PaymentPlan:  req.PaymentPlan,
		Installments: items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newFeePlanResponse(plan)})
}
