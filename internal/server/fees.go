package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	reportdomain "github.com/smallbiznis/feeledger/internal/report/domain"
)

type modeDetailsRequest struct {
	BankName        *string `json:"bank_name"`
	ChequeNo        *string `json:"cheque_no"`
	ChequeDate      *string `json:"cheque_date"`
	TransactionID   *string `json:"transaction_id"`
	TransactionDate *string `json:"transaction_date"`
}

func (m modeDetailsRequest) present() bool {
	return m.BankName != nil || m.ChequeNo != nil || m.ChequeDate != nil || m.TransactionID != nil || m.TransactionDate != nil
}

func (m modeDetailsRequest) toDomain() (ledgerdomain.ModeDetails, error) {
	var d ledgerdomain.ModeDetails
	if m.BankName != nil {
		d.BankName = *m.BankName
	}
	if m.ChequeNo != nil {
		d.ChequeNo = *m.ChequeNo
	}
	if m.TransactionID != nil {
		d.TransactionID = *m.TransactionID
	}
	if m.ChequeDate != nil {
		parsed, err := parseOptionalDate(*m.ChequeDate)
		if err != nil {
			return d, newValidationError("cheque_date", "invalid_cheque_date", "cheque_date must be YYYY-MM-DD")
		}
		d.ChequeDate = parsed
	}
	if m.TransactionDate != nil {
		parsed, err := parseOptionalDate(*m.TransactionDate)
		if err != nil {
			return d, newValidationError("transaction_date", "invalid_transaction_date", "transaction_date must be YYYY-MM-DD")
		}
		d.TransactionDate = parsed
	}
	return d, nil
}

type collectFeeRequest struct {
	StudentID         string          `json:"student_id"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	PaymentMode       string          `json:"payment_mode"`
	Date              string          `json:"date"`
	Remarks           string          `json:"remarks"`
	CourseID          string          `json:"course_id"`
	InstallmentNumber *int            `json:"installment_number"`
	modeDetailsRequest
}

type updateFeeRequest struct {
	AmountPaid  *decimal.Decimal `json:"amount_paid"`
	PaymentMode *string          `json:"payment_mode"`
	Date        *string          `json:"date"`
	Remarks     *string          `json:"remarks"`
	modeDetailsRequest
}

type reportQuery struct {
	StartDate   string `form:"start_date"`
	EndDate     string `form:"end_date"`
	ReceiptNo   string `form:"receipt_no"`
	PaymentMode string `form:"payment_mode"`
	StudentID   string `form:"student_id"`
	CourseID    string `form:"course_id"`
}

func (s *Server) NextReceiptNo(c *gin.Context) {
	next, err := s.ledgerSvc.NextReceiptNo(c.Request.Context(), strings.TrimSpace(c.Query("branch")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": nextReceiptNoResponse{
		ReceiptNo:  next.ReceiptNo,
		SequenceNo: next.SequenceNo,
		Scope:      next.Scope,
	}})
}

func (s *Server) CollectFee(c *gin.Context) {
	var req collectFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set(contextStudentIDKey, strings.TrimSpace(req.StudentID))

	in := ledgerdomain.CollectRequest{
		StudentID:         req.StudentID,
		AmountPaid:        req.AmountPaid,
		PaymentMode:       req.PaymentMode,
		Remarks:           req.Remarks,
		CourseID:          req.CourseID,
		InstallmentNumber: req.InstallmentNumber,
		IdempotencyKey:    strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)),
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD"))
		return
	}
	if date != nil {
		in.Date = *date
	}
	if in.ModeDetails, err = req.modeDetailsRequest.toDomain(); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.ledgerSvc.Collect(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": newReceiptResponse(result.Receipt)})
}

func (s *Server) GetFee(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidReceiptID)
		return
	}

	receipt, err := s.ledgerSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newReceiptResponse(receipt)})
}

func (s *Server) UpdateFee(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidReceiptID)
		return
	}

	var req updateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	in := ledgerdomain.UpdateRequest{
		AmountPaid:  req.AmountPaid,
		PaymentMode: req.PaymentMode,
		Remarks:     req.Remarks,
	}
	if req.Date != nil {
		date, err := parseOptionalDate(*req.Date)
		if err != nil || date == nil {
			AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD"))
			return
		}
		in.Date = date
	}
	if req.modeDetailsRequest.present() {
		details, err := req.modeDetailsRequest.toDomain()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		in.ModeDetails = &details
	}

	receipt, err := s.ledgerSvc.Update(c.Request.Context(), id, in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextStudentIDKey, receipt.StudentID)
	c.JSON(http.StatusOK, gin.H{"data": newReceiptResponse(receipt)})
}

func (s *Server) DeleteFee(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidReceiptID)
		return
	}

	if err := s.ledgerSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) FeeReport(c *gin.Context) {
	var query reportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, err := parseOptionalDate(query.StartDate)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "start_date must be YYYY-MM-DD"))
		return
	}
	endDate, err := parseOptionalDate(query.EndDate)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "end_date must be YYYY-MM-DD"))
		return
	}

	filter := reportdomain.Filter{
		ReceiptNo:   query.ReceiptNo,
		PaymentMode: query.PaymentMode,
		StudentID:   query.StudentID,
		CourseID:    query.CourseID,
	}
	if startDate != nil {
		filter.StartDate = *startDate
	}
	if endDate != nil {
		filter.EndDate = *endDate
	}

	report, err := s.reportSvc.Report(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newReportResponse(report)})
}
