package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	"github.com/smallbiznis/feeledger/internal/report/domain"
	"github.com/smallbiznis/feeledger/internal/report/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupReport(t *testing.T) (*gorm.DB, *snowflake.Node, domain.Service) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&ledgerdomain.Receipt{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return db, node, New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})
}

func day(v string) time.Time {
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		panic(err)
	}
	return t
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type seed struct {
	student string
	course  string
	date    string
	amount  string
	mode    ledgerdomain.PaymentMode
	deleted bool
}

func insert(t *testing.T, db *gorm.DB, node *snowflake.Node, rows []seed) []ledgerdomain.Receipt {
	t.Helper()
	out := make([]ledgerdomain.Receipt, 0, len(rows))
	for i, row := range rows {
		r := ledgerdomain.Receipt{
			ID:            node.Generate(),
			ReceiptNo:     fmt.Sprintf("RCPT-%06d", i+1),
			SequenceScope: "institute",
			SequenceNo:    int64(i + 1),
			StudentID:     row.student,
			CourseID:      row.course,
			ReceiptDate:   day(row.date),
			AmountPaid:    d(row.amount),
			PaymentMode:   row.mode,
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}
		if row.deleted {
			at := time.Now().UTC()
			r.DeletedAt = &at
		}
		require.NoError(t, db.Create(&r).Error)
		out = append(out, r)
	}
	return out
}

func TestReport_FiltersAndTotals(t *testing.T) {
	db, node, svc := setupReport(t)
	insert(t, db, node, []seed{
		{"S-1", "C-1", "2026-02-28", "500", ledgerdomain.PaymentModeCash, false},
		{"S-1", "C-1", "2026-03-01", "1000.25", ledgerdomain.PaymentModeCash, false},
		{"S-2", "C-2", "2026-03-15", "2000", ledgerdomain.PaymentModeCheque, false},
		{"S-2", "C-2", "2026-03-20", "999", ledgerdomain.PaymentModeOnline, true},
		{"S-3", "C-1", "2026-03-31", "0.10", ledgerdomain.PaymentModeOnline, false},
		{"S-3", "C-1", "2026-04-01", "700", ledgerdomain.PaymentModeCash, false},
	})

	ctx := context.Background()
	march := domain.Filter{StartDate: day("2026-03-01"), EndDate: day("2026-03-31")}

	all, err := svc.Report(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Count)
	assert.True(t, all.TotalAmount.Equal(d("3000.35")), all.TotalAmount.String())
	assert.True(t, all.ByMode[ledgerdomain.PaymentModeCash].Equal(d("1000.25")))
	assert.True(t, all.ByMode[ledgerdomain.PaymentModeOnline].Equal(d("0.10")))
	assert.Equal(t, "RCPT-000005", all.Receipts[0].ReceiptNo)

	sum := decimal.Zero
	for _, r := range all.Receipts {
		sum = sum.Add(r.AmountPaid)
	}
	assert.True(t, sum.Equal(all.TotalAmount))

	byMode := march
	byMode.PaymentMode = "UPI"
	online, err := svc.Report(ctx, byMode)
	require.NoError(t, err)
	assert.Equal(t, 1, online.Count)

	byStudent := march
	byStudent.StudentID = "S-2"
	s2, err := svc.Report(ctx, byStudent)
	require.NoError(t, err)
	assert.Equal(t, 1, s2.Count)
	assert.True(t, s2.TotalAmount.Equal(d("2000")))

	byCourse := march
	byCourse.CourseID = "C-1"
	c1, err := svc.Report(ctx, byCourse)
	require.NoError(t, err)
	assert.Equal(t, 2, c1.Count)

	byNo := domain.Filter{StartDate: day("2026-01-01"), EndDate: day("2026-12-31"), ReceiptNo: "RCPT-000006"}
	one, err := svc.Report(ctx, byNo)
	require.NoError(t, err)
	require.Equal(t, 1, one.Count)
	assert.Equal(t, "S-3", one.Receipts[0].StudentID)

	sameDay, err := svc.Report(ctx, domain.Filter{StartDate: day("2026-03-01"), EndDate: day("2026-03-01")})
	require.NoError(t, err)
	assert.Equal(t, 1, sameDay.Count)

	empty, err := svc.Report(ctx, domain.Filter{StartDate: day("2025-01-01"), EndDate: day("2025-01-31")})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, empty.TotalAmount.IsZero())
}

func TestReport_Validation(t *testing.T) {
	_, _, svc := setupReport(t)
	ctx := context.Background()

	_, err := svc.Report(ctx, domain.Filter{EndDate: day("2026-03-01")})
	assert.ErrorIs(t, err, domain.ErrMissingDateRange)

	_, err = svc.Report(ctx, domain.Filter{StartDate: day("2026-03-02"), EndDate: day("2026-03-01")})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)

	_, err = svc.Report(ctx, domain.Filter{StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), PaymentMode: "barter"})
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentMode)
}
