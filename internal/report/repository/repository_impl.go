package repository

import (
	"context"

	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	"github.com/smallbiznis/feeledger/internal/report/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Search(ctx context.Context, db *gorm.DB, q domain.Query) ([]ledgerdomain.Receipt, error) {
	stmt := db.WithContext(ctx).
		Model(&ledgerdomain.Receipt{}).
		Where("deleted_at IS NULL").
		Where("receipt_date >= ? AND receipt_date <= ?", q.StartDate, q.EndDate)

	if q.ReceiptNo != "" {
		stmt = stmt.Where("receipt_no = ?", q.ReceiptNo)
	}
	if q.PaymentMode != "" {
		stmt = stmt.Where("payment_mode = ?", q.PaymentMode)
	}
	if q.StudentID != "" {
		stmt = stmt.Where("student_id = ?", q.StudentID)
	}
	if q.CourseID != "" {
		stmt = stmt.Where("course_id = ?", q.CourseID)
	}

	var receipts []ledgerdomain.Receipt
	if err := stmt.Order("receipt_date desc").Order("id desc").Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}
