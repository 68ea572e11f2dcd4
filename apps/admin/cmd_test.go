package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	apikeydomain "github.com/smallbiznis/feeledger/internal/apikey/domain"
	apikeyrepo "github.com/smallbiznis/feeledger/internal/apikey/repository"
	apikeyservice "github.com/smallbiznis/feeledger/internal/apikey/service"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&apikeydomain.APIKey{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	return &commandLine{
		keys: apikeyservice.New(apikeyservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: apikeyrepo.Provide()}),
		out:  out,
	}, out
}

func Test_commandLine_run(t *testing.T) {
	tests := []struct {
		name    string
		args    []string // without program name
		wantErr error
		wantOut string
	}{
		{name: "no command", args: nil, wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"dropdb"}, wantErr: errHelp, wantOut: "Usage:"},
		{name: "create without role", args: []string{"createkey", "-name", "desk"}, wantErr: errHelp},
		{name: "create bad role", args: []string{"createkey", "-name", "desk", "-role", "owner"}, wantErr: apikeydomain.ErrInvalidRole},
		{name: "create", args: []string{"createkey", "-name", "desk", "-role", "cashier"}, wantOut: "api_key: fl_live_"},
		{name: "revoke without key", args: []string{"revokekey"}, wantErr: errHelp},
		{name: "revoke unknown", args: []string{"revokekey", "-key", "missing"}, wantErr: apikeydomain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)
			err := cli.run(context.Background(), append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_listAfterCreate(t *testing.T) {
	cli, out := setup(t)
	require.NoError(t, cli.run(context.Background(), []string{"admin", "createkey", "-name", "office", "-role", "admin"}))
	out.Reset()

	require.NoError(t, cli.run(context.Background(), []string{"admin", "listkeys"}))
	assert.Contains(t, out.String(), "office")
	assert.Contains(t, out.String(), "admin")
	assert.NotContains(t, out.String(), "fl_live_")
}
