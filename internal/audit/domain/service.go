package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ActionReceiptCollect = "fee_receipt.collect"
	ActionReceiptUpdate  = "fee_receipt.update"
	ActionReceiptDelete  = "fee_receipt.delete"
	ActionProfileSync    = "fee_profile.sync"

	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuthorizationDenied = "authorization.denied"
)

const (
	TargetReceipt       = "fee_receipt"
	TargetProfile       = "student_fee_profile"
	TargetAPIKey        = "api_key"
	TargetAuthorization = "authorization"
)

type ListAuditLogRequest struct {
	PageToken  string
	PageSize   int
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	NextPageToken string     `json:"next_page_token,omitempty"`
	HasMore       bool       `json:"has_more"`
	AuditLogs     []AuditLog `json:"audit_logs"`
}

// ListFilter narrows audit entries. An Action ending in ".*" matches every
// action of that family, e.g. "fee_receipt.*".
type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	BeforeID   snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type Service interface {
	// AuditLog records an entry. When tx is set the entry commits with it.
	AuditLog(ctx context.Context, tx *gorm.DB, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
