package server

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apikeydomain "github.com/smallbiznis/feeledger/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/authorization"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	"github.com/smallbiznis/feeledger/internal/lock"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	reportdomain "github.com/smallbiznis/feeledger/internal/report/domain"
	sequencedomain "github.com/smallbiznis/feeledger/internal/sequence/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type              string            `json:"type"`
	Message           string            `json:"message"`
	Errors            []ValidationError `json:"errors,omitempty"`
	OutstandingAmount *string           `json:"outstanding_amount,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fromFieldErrors(fieldErrs),
		}
	}

	var overpay *ledgerdomain.OverpaymentError
	if errors.As(err, &overpay) {
		outstanding := overpay.Outstanding.StringFixed(2)
		return http.StatusUnprocessableEntity, errorPayload{
			Type:              "overpayment_rejected",
			Message:           overpay.Error(),
			OutstandingAmount: &outstanding,
		}
	}

	var details *ledgerdomain.ModeDetailsError
	if errors.As(err, &details) {
		missing := make([]ValidationError, 0, len(details.Missing))
		for _, field := range details.Missing {
			missing = append(missing, ValidationError{
				Field:   field,
				Code:    "required",
				Message: field + " is required for " + string(details.Mode) + " payments",
			})
		}
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_mode_details",
			Message: "payment mode details incomplete",
			Errors:  missing,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrInvalidKey):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidRole):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, ledgerdomain.ErrIdempotencyConflict),
		errors.Is(err, ledgerdomain.ErrReceiptNoCollision),
		errors.Is(err, feeplandomain.ErrTotalBelowReceived):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case isUnavailableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable, retry the request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type and code the
// client receives.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func fromFieldErrors(errs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, fe := range errs {
		field := snakeCase(fe.Field())
		out = append(out, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: "failed " + fe.Tag() + " check",
		})
	}
	return out
}

func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isLedgerValidationError(err),
		isFeePlanValidationError(err),
		isReportValidationError(err),
		isAPIKeyValidationError(err),
		isAuditValidationError(err),
		errors.Is(err, sequencedomain.ErrInvalidBranch):
		return true
	default:
		return false
	}
}

func isLedgerValidationError(err error) bool {
	switch {
	case errors.Is(err, ledgerdomain.ErrInvalidStudent),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidPaymentMode),
		errors.Is(err, ledgerdomain.ErrInvalidDate),
		errors.Is(err, ledgerdomain.ErrInvalidInstallment),
		errors.Is(err, ledgerdomain.ErrInvalidReceiptID),
		errors.Is(err, ledgerdomain.ErrInvalidUpdate):
		return true
	default:
		return false
	}
}

func isFeePlanValidationError(err error) bool {
	switch {
	case errors.Is(err, feeplandomain.ErrInvalidStudent),
		errors.Is(err, feeplandomain.ErrInvalidTotalFees),
		errors.Is(err, feeplandomain.ErrInvalidPaymentPlan),
		errors.Is(err, feeplandomain.ErrInvalidInstallment),
		errors.Is(err, feeplandomain.ErrDuplicateInstallment),
		errors.Is(err, feeplandomain.ErrScheduleMismatch),
		errors.Is(err, feeplandomain.ErrEmptySchedule):
		return true
	default:
		return false
	}
}

func isReportValidationError(err error) bool {
	switch {
	case errors.Is(err, reportdomain.ErrMissingDateRange),
		errors.Is(err, reportdomain.ErrInvalidDateRange),
		errors.Is(err, reportdomain.ErrInvalidPaymentMode):
		return true
	default:
		return false
	}
}

func isAPIKeyValidationError(err error) bool {
	switch {
	case errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidRole),
		errors.Is(err, apikeydomain.ErrInvalidKeyID):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, feeplandomain.ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUnavailableError(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, sequencedomain.ErrAllocatorUnavailable),
		errors.Is(err, ledgerdomain.ErrStorageUnavailable),
		errors.Is(err, feeplandomain.ErrStorageUnavailable),
		errors.Is(err, reportdomain.ErrStorageUnavailable),
		errors.Is(err, lock.ErrLockTimeout):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, ledgerdomain.ErrNotFound):
		return "receipt not found"
	case errors.Is(err, feeplandomain.ErrNotFound):
		return "student fee profile not found"
	default:
		return "not found"
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, ledgerdomain.ErrIdempotencyConflict):
		return "idempotency key already used for a different receipt"
	case errors.Is(err, ledgerdomain.ErrReceiptNoCollision):
		return "receipt number already issued, check ledger.receiptNumberTemplate"
	case errors.Is(err, feeplandomain.ErrTotalBelowReceived):
		return "total fees below amount already received"
	default:
		return "conflict"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return sentinelCode(err)
	}
}

// sentinelCode strips wrapping context so "invalid_amount: ..." reports
// as invalid_amount.
func sentinelCode(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx > 0 {
		return msg[:idx]
	}
	return msg
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "duplicate_installment", "schedule_total_mismatch", "empty_schedule":
		return "emi_schedule"
	case "missing_date_range", "invalid_date_range":
		return "date_range"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "schedule_total_mismatch":
		return "installments must sum to total fees"
	case "missing_date_range":
		return "start_date and end_date are required"
	default:
		return "invalid value"
	}
}
