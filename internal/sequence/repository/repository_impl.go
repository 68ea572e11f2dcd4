package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/feeledger/internal/sequence/domain"
	"github.com/smallbiznis/feeledger/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, conn *gorm.DB, scope string) error {
	row := domain.Sequence{Scope: scope, Value: 0, UpdatedAt: time.Now().UTC()}
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "scope"}}, DoNothing: true}).
		Create(&row).Error
}

func (r *repo) LockForUpdate(ctx context.Context, conn *gorm.DB, scope string) (*domain.Sequence, error) {
	var row domain.Sequence
	err := conn.WithContext(ctx).Raw(
		`SELECT scope, value, updated_at FROM receipt_sequences WHERE scope = ?`+db.ForUpdate(conn),
		scope,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Scope == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) Increment(ctx context.Context, conn *gorm.DB, scope string) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE receipt_sequences SET value = value + 1, updated_at = ? WHERE scope = ?`,
		time.Now().UTC(),
		scope,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var value int64
	err := conn.WithContext(ctx).Raw(
		`SELECT value FROM receipt_sequences WHERE scope = ?`,
		scope,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repo) Find(ctx context.Context, conn *gorm.DB, scope string) (*domain.Sequence, error) {
	var row domain.Sequence
	err := conn.WithContext(ctx).Raw(
		`SELECT scope, value, updated_at FROM receipt_sequences WHERE scope = ?`,
		scope,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Scope == "" {
		return nil, nil
	}
	return &row, nil
}
