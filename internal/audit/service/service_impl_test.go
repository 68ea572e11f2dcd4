package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/audit/repository"
	obscontext "github.com/smallbiznis/feeledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuditService(t *testing.T) (*gorm.DB, auditdomain.Service) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return db, svc
}

func TestAuditLog_UsesContextActorAndMasks(t *testing.T) {
	db, svc := setupAuditService(t)

	ctx := obscontext.WithActor(context.Background(), string(auditdomain.ActorTypeAPIKey), "key_ABC")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	target := "1001"

	err := svc.AuditLog(ctx, nil, "", nil, auditdomain.ActionReceiptCollect, auditdomain.TargetReceipt, &target, map[string]any{
		"cheque_no":   "000123456",
		"amount_paid": "2000.00",
	})
	require.NoError(t, err)

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, string(auditdomain.ActorTypeAPIKey), stored.ActorType)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, "key_ABC", *stored.ActorID)
	require.NotNil(t, stored.RequestID)
	assert.Equal(t, "req-1", *stored.RequestID)
	assert.Equal(t, "****3456", stored.Metadata["cheque_no"])
	assert.Equal(t, "2000.00", stored.Metadata["amount_paid"])
}

func TestAuditLog_InsideTransactionRollsBack(t *testing.T) {
	db, svc := setupAuditService(t)

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.AuditLog(context.Background(), tx, "", nil, auditdomain.ActionReceiptDelete, auditdomain.TargetReceipt, nil, nil))
		return fmt.Errorf("abort")
	})

	var count int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAuditLog_RejectsEmptyAction(t *testing.T) {
	_, svc := setupAuditService(t)
	err := svc.AuditLog(context.Background(), nil, "", nil, " ", "", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestList_Paginates(t *testing.T) {
	_, svc := setupAuditService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		target := fmt.Sprintf("%d", i)
		require.NoError(t, svc.AuditLog(ctx, nil, "", nil, auditdomain.ActionReceiptCollect, auditdomain.TargetReceipt, &target, nil))
	}
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, auditdomain.ActionProfileSync, auditdomain.TargetProfile, nil, nil))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionReceiptCollect, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextPageToken)
	assert.Equal(t, "4", *first.AuditLogs[0].TargetID)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionReceiptCollect, PageSize: 3, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 2)
	assert.False(t, second.HasMore)
	assert.Equal(t, "0", *second.AuditLogs[1].TargetID)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{PageToken: "not-an-id"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestList_FiltersByActionFamilyAndActor(t *testing.T) {
	_, svc := setupAuditService(t)

	clerk := obscontext.WithActor(context.Background(), string(auditdomain.ActorTypeAPIKey), "key_CLERK")
	admin := obscontext.WithActor(context.Background(), string(auditdomain.ActorTypeAPIKey), "key_ADMIN")

	require.NoError(t, svc.AuditLog(clerk, nil, "", nil, auditdomain.ActionReceiptCollect, auditdomain.TargetReceipt, nil, nil))
	require.NoError(t, svc.AuditLog(clerk, nil, "", nil, auditdomain.ActionReceiptUpdate, auditdomain.TargetReceipt, nil, nil))
	require.NoError(t, svc.AuditLog(admin, nil, "", nil, auditdomain.ActionReceiptDelete, auditdomain.TargetReceipt, nil, nil))
	require.NoError(t, svc.AuditLog(admin, nil, "", nil, auditdomain.ActionAPIKeyCreate, "api_key", nil, nil))

	receipts, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{Action: "fee_receipt.*"})
	require.NoError(t, err)
	assert.Len(t, receipts.AuditLogs, 3)

	byAdmin, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{Action: "fee_receipt.*", ActorID: "key_ADMIN"})
	require.NoError(t, err)
	require.Len(t, byAdmin.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActionReceiptDelete, byAdmin.AuditLogs[0].Action)
}
