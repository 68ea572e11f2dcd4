package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeledger/internal/ledger/domain"
	"github.com/smallbiznis/feeledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const receiptColumns = `id, receipt_no, sequence_scope, sequence_no, student_id, course_id, receipt_date,
	amount_paid, payment_mode, bank_name, cheque_no, cheque_date, transaction_id, transaction_date,
	remarks, installment_number, idempotency_key, created_by, created_at, updated_at, deleted_at`

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, receipt *domain.Receipt) error {
	return conn.WithContext(ctx).Create(receipt).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM fee_receipts WHERE id = ?`
	if forUpdate {
		query += db.ForUpdate(conn)
	}
	return scanOne(ctx, conn, query, id)
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, conn *gorm.DB, key string) (*domain.Receipt, error) {
	return scanOne(ctx, conn, `SELECT `+receiptColumns+` FROM fee_receipts WHERE idempotency_key = ?`, key)
}

func (r *repo) ReceiptNoTaken(ctx context.Context, conn *gorm.DB, receiptNo string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Model(&domain.Receipt{}).Where("receipt_no = ?", receiptNo).Count(&count).Error
	return count > 0, err
}

func scanOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.Receipt, error) {
	var receipt domain.Receipt
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&receipt).Error; err != nil {
		return nil, err
	}
	if receipt.ID == 0 {
		return nil, nil
	}
	return &receipt, nil
}

func (r *repo) ListActiveByStudent(ctx context.Context, conn *gorm.DB, studentID string) ([]domain.Receipt, error) {
	var receipts []domain.Receipt
	err := conn.WithContext(ctx).Raw(
		`SELECT `+receiptColumns+` FROM fee_receipts
		 WHERE student_id = ? AND deleted_at IS NULL
		 ORDER BY receipt_date DESC, id DESC`,
		studentID,
	).Scan(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// Update writes the editable columns only. Receipt number, student and
// installment stay as issued.
func (r *repo) Update(ctx context.Context, conn *gorm.DB, receipt *domain.Receipt) error {
	res := conn.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("id = ? AND deleted_at IS NULL", receipt.ID).
		Updates(map[string]any{
			"amount_paid":      receipt.AmountPaid,
			"payment_mode":     receipt.PaymentMode,
			"bank_name":        receipt.BankName,
			"cheque_no":        receipt.ChequeNo,
			"cheque_date":      receipt.ChequeDate,
			"transaction_id":   receipt.TransactionID,
			"transaction_date": receipt.TransactionDate,
			"receipt_date":     receipt.ReceiptDate,
			"remarks":          receipt.Remarks,
			"updated_at":       receipt.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) SoftDelete(ctx context.Context, conn *gorm.DB, id snowflake.ID, at time.Time) error {
	res := conn.WithContext(ctx).Exec(
		`UPDATE fee_receipts SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at, at, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
