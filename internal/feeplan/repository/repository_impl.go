package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/feeledger/internal/feeplan/domain"
	"github.com/smallbiznis/feeledger/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProfile(ctx context.Context, conn *gorm.DB, studentID string, forUpdate bool) (*domain.Profile, error) {
	query := `SELECT student_id, branch_code, course_id, total_fees, payment_plan, created_at, updated_at
		 FROM student_fee_profiles WHERE student_id = ?`
	if forUpdate {
		query += db.ForUpdate(conn)
	}

	var profile domain.Profile
	if err := conn.WithContext(ctx).Raw(query, studentID).Scan(&profile).Error; err != nil {
		return nil, err
	}
	if profile.StudentID == "" {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) ListInstallments(ctx context.Context, conn *gorm.DB, studentID string) ([]domain.Installment, error) {
	var items []domain.Installment
	err := conn.WithContext(ctx).Raw(
		`SELECT id, student_id, installment_number, due_amount, due_date
		 FROM student_fee_installments WHERE student_id = ?
		 ORDER BY installment_number ASC`,
		studentID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertProfile(ctx context.Context, conn *gorm.DB, profile *domain.Profile) error {
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"branch_code", "course_id", "total_fees", "payment_plan", "updated_at"}),
		}).
		Create(profile).Error
}

func (r *repo) ReplaceInstallments(ctx context.Context, conn *gorm.DB, studentID string, items []domain.Installment) error {
	if err := conn.WithContext(ctx).Exec(
		`DELETE FROM student_fee_installments WHERE student_id = ?`,
		studentID,
	).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return conn.WithContext(ctx).Create(&items).Error
}

type amountRow struct {
	AmountPaid decimal.Decimal
}

func (r *repo) ReceivedAmounts(ctx context.Context, conn *gorm.DB, studentID string) ([]decimal.Decimal, error) {
	var rows []amountRow
	err := conn.WithContext(ctx).Raw(
		`SELECT amount_paid FROM fee_receipts WHERE student_id = ? AND deleted_at IS NULL`,
		studentID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]decimal.Decimal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.AmountPaid)
	}
	return out, nil
}
