package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, receipt *Receipt) error
	// FindByID returns soft-deleted rows too; callers decide visibility.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Receipt, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Receipt, error)
	// ReceiptNoTaken includes soft-deleted rows; their numbers stay issued.
	ReceiptNoTaken(ctx context.Context, db *gorm.DB, receiptNo string) (bool, error)
	ListActiveByStudent(ctx context.Context, db *gorm.DB, studentID string) ([]Receipt, error)
	Update(ctx context.Context, db *gorm.DB, receipt *Receipt) error
	SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

type Service interface {
	Collect(ctx context.Context, req CollectRequest) (*CollectResult, error)
	Update(ctx context.Context, receiptID snowflake.ID, req UpdateRequest) (*Receipt, error)
	Delete(ctx context.Context, receiptID snowflake.ID) error
	Get(ctx context.Context, receiptID snowflake.ID) (*Receipt, error)
	NextReceiptNo(ctx context.Context, branchCode string) (*NextReceiptNo, error)
}
