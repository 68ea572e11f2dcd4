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
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/feeledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/feeledger/internal/audit/service"
	"github.com/smallbiznis/feeledger/internal/clock"
	"github.com/smallbiznis/feeledger/internal/config"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
	feeplanrepo "github.com/smallbiznis/feeledger/internal/feeplan/repository"
	feeplanservice "github.com/smallbiznis/feeledger/internal/feeplan/service"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/feeledger/internal/ledger/repository"
	"github.com/smallbiznis/feeledger/internal/lock"
	"github.com/smallbiznis/feeledger/internal/statement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var today = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	feePlan feeplandomain.Service
	svc     domain.Service
}

func setupStatement(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&feeplandomain.Profile{}, &feeplandomain.Installment{}, &ledgerdomain.Receipt{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	log := zap.NewNop()
	feePlan := feeplanservice.New(feeplanservice.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Repo:         feeplanrepo.Provide(),
		Locker:       lock.NewLocalLocker(),
		LedgerConfig: config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig()),
		AuditSvc:     auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepo.Provide()}),
	})
	svc := New(Params{
		DB:         db,
		Log:        log,
		FeePlanSvc: feePlan,
		LedgerRepo: ledgerrepo.Provide(),
		Clock:      clock.NewFakeClock(today),
	})
	return &fixture{db: db, node: node, feePlan: feePlan, svc: svc}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f *fixture) receipt(t *testing.T, studentID, amount string, installment *int, remarks string, date time.Time) ledgerdomain.Receipt {
	t.Helper()
	id := f.node.Generate()
	r := ledgerdomain.Receipt{
		ID:                id,
		ReceiptNo:         "R-" + id.String(),
		SequenceScope:     "institute",
		SequenceNo:        id.Int64(),
		StudentID:         studentID,
		ReceiptDate:       date,
		AmountPaid:        d(amount),
		PaymentMode:       ledgerdomain.PaymentModeCash,
		Remarks:           remarks,
		InstallmentNumber: installment,
		CreatedAt:         today,
		UpdatedAt:         today,
	}
	require.NoError(t, f.db.Create(&r).Error)
	return r
}

func n(v int) *int { return &v }

func (f *fixture) syncMonthly(t *testing.T, studentID string) {
	t.Helper()
	items := []feeplandomain.SyncInstallmentRequest{{InstallmentNumber: 1, DueAmount: d("2000")}}
	for i := 2; i <= 11; i++ {
		due := time.Date(2026, time.Month(i-1), 5, 0, 0, 0, 0, time.UTC)
		items = append(items, feeplandomain.SyncInstallmentRequest{InstallmentNumber: i, DueAmount: d("1000"), DueDate: &due})
	}
	_, err := f.feePlan.Sync(context.Background(), feeplandomain.SyncRequest{
		StudentID:    studentID,
		TotalFees:    d("12000"),
		PaymentPlan:  "Monthly",
		Installments: items,
	})
	require.NoError(t, err)
}

func TestSummary_MonthlyPlan(t *testing.T) {
	f := setupStatement(t)
	f.syncMonthly(t, "S-1")
	f.receipt(t, "S-1", "2000", n(1), "", today.AddDate(0, -2, 0))
	f.receipt(t, "S-1", "1000", n(2), "", today.AddDate(0, -1, 0))
	f.receipt(t, "S-1", "1000", n(3), "", today)

	summary, err := f.svc.Summary(context.Background(), "S-1")
	require.NoError(t, err)

	assert.Equal(t, "S-1", summary.StudentID)
	assert.True(t, summary.TotalFees.Equal(d("12000")))
	assert.True(t, summary.TotalReceived.Equal(d("4000")))
	assert.True(t, summary.OutstandingAmount.Equal(d("8000")))
	// installments 1-4 are payable by 10 March: 2000 + 3*1000
	assert.True(t, summary.DueAmount.Equal(d("1000")), summary.DueAmount.String())
	assert.Equal(t, feeplandomain.PaymentPlanMonthly, summary.FeesMethod)
	assert.True(t, summary.AdmissionFeePaid)

	require.Len(t, summary.EMIStructure, 11)
	assert.Equal(t, "Admission/Registration Fee", summary.EMIStructure[0].Label)
	assert.Equal(t, "Installment 1", summary.EMIStructure[1].Label)
	assert.Equal(t, domain.StatusPaid, summary.EMIStructure[2].Status)
	assert.Equal(t, domain.StatusDue, summary.EMIStructure[3].Status)
	assert.Equal(t, domain.StatusUpcoming, summary.EMIStructure[4].Status)
	assert.True(t, summary.EMIStructure[4].RemainingAmount.Equal(d("1000")))
}

func TestSummary_ExcludesDeletedReceipts(t *testing.T) {
	f := setupStatement(t)
	f.syncMonthly(t, "S-1")
	kept := f.receipt(t, "S-1", "500", n(1), "", today)
	gone := f.receipt(t, "S-1", "1500", n(1), "", today)
	require.NoError(t, f.db.Model(&ledgerdomain.Receipt{}).Where("id = ?", gone.ID).Update("deleted_at", today).Error)

	summary, err := f.svc.Summary(context.Background(), "S-1")
	require.NoError(t, err)
	assert.True(t, summary.TotalReceived.Equal(d("500")))
	assert.True(t, summary.OutstandingAmount.Equal(d("11500")))
	assert.False(t, summary.AdmissionFeePaid)
	assert.Equal(t, domain.StatusPartial, summary.EMIStructure[0].Status)

	history, err := f.svc.History(context.Background(), "S-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, kept.ID, history[0].Receipt.ID)
}

func TestSummary_OneTimeDueEqualsOutstanding(t *testing.T) {
	f := setupStatement(t)
	_, err := f.feePlan.Sync(context.Background(), feeplandomain.SyncRequest{
		StudentID:   "S-2",
		TotalFees:   d("30000"),
		PaymentPlan: "OneTime",
	})
	require.NoError(t, err)
	f.receipt(t, "S-2", "10000.50", nil, "part payment", today)

	summary, err := f.svc.Summary(context.Background(), "S-2")
	require.NoError(t, err)
	assert.True(t, summary.OutstandingAmount.Equal(d("19999.50")))
	assert.True(t, summary.DueAmount.Equal(summary.OutstandingAmount))
	require.Len(t, summary.EMIStructure, 1)
	assert.Equal(t, "Full Course Fee", summary.EMIStructure[0].Label)
}

func TestHistory_MostRecentFirstWithLabels(t *testing.T) {
	f := setupStatement(t)
	f.syncMonthly(t, "S-1")
	older := f.receipt(t, "S-1", "2000", nil, "Registration fee", today.AddDate(0, 0, -10))
	sameDayFirst := f.receipt(t, "S-1", "100", n(2), "", today)
	sameDaySecond := f.receipt(t, "S-1", "100", n(2), "", today)

	history, err := f.svc.History(context.Background(), "S-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, sameDaySecond.ID, history[0].Receipt.ID)
	assert.Equal(t, sameDayFirst.ID, history[1].Receipt.ID)
	assert.Equal(t, older.ID, history[2].Receipt.ID)
	assert.Equal(t, "Installment 1", history[0].InstallmentLabel)
	assert.Equal(t, feeplandomain.KindAdmissionFee, history[2].Kind)
	assert.Equal(t, "Admission/Registration Fee", history[2].InstallmentLabel)
}

func TestSummary_Errors(t *testing.T) {
	f := setupStatement(t)
	_, err := f.svc.Summary(context.Background(), " ")
	assert.ErrorIs(t, err, feeplandomain.ErrInvalidStudent)
	_, err = f.svc.History(context.Background(), "missing")
	assert.ErrorIs(t, err, feeplandomain.ErrNotFound)
}

func TestSummarize_DueClampedToOutstanding(t *testing.T) {
	past := today.AddDate(0, -1, 0)
	plan := &feeplandomain.FeePlan{
		StudentID: "S-3",
		TotalFees: d("3000"),
		Plan:      feeplandomain.PaymentPlanMonthly,
		Schedule: []feeplandomain.ScheduledInstallment{
			{Number: 1, DueAmount: d("1000"), DueDate: &past},
			{Number: 2, DueAmount: d("2000"), DueDate: &past},
		},
	}
	summary := Summarize(plan, []ledgerdomain.Receipt{{AmountPaid: d("3000")}}, today)
	assert.True(t, summary.DueAmount.IsZero())
	assert.True(t, summary.OutstandingAmount.IsZero())
	assert.Equal(t, domain.StatusPaid, summary.EMIStructure[1].Status)
}
