package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	apikeydomain "github.com/smallbiznis/feeledger/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectFeeReceipt = "fee_receipt"
	ObjectReport     = "report"
	ObjectFeeProfile = "fee_profile"
	ObjectAuditLog   = "audit_log"
	ObjectAPIKey     = "api_key"
)

const (
	ActionFeeView    = "fee.view"
	ActionFeeCollect = "fee.collect"
	ActionFeeUpdate  = "fee.update"
	ActionFeeDelete  = "fee.delete"

	ActionReportView = "report.view"

	ActionFeeProfileSync = "fee_profile.sync"

	ActionAuditLogView = "audit_log.view"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"
)

const (
	actorSystem       = "system"
	actorAPIKeyPrefix = "api_key:"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// RoleSubject is the casbin subject for a role name.
func RoleSubject(role string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(role))
}

// APIKeyActor is the casbin subject for an API key.
func APIKeyActor(keyID string) string {
	return actorAPIKeyPrefix + strings.TrimSpace(keyID)
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, role string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	actorType, actorID, err := resolveActor(actor)
	if err != nil {
		return err
	}

	roleName, ok := apikeydomain.ParseRole(role)
	if actorType == actorSystem {
		roleName, ok = apikeydomain.RoleAdmin, true
	}
	if !ok {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrInvalidRole
	}

	if err := s.ensureGrouping(actor, RoleSubject(roleName)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrForbidden
	}
	return nil
}

func resolveActor(actor string) (string, *string, error) {
	if actor == actorSystem {
		return actorSystem, nil, nil
	}
	if strings.HasPrefix(actor, actorAPIKeyPrefix) {
		keyID := strings.TrimSpace(strings.TrimPrefix(actor, actorAPIKeyPrefix))
		if keyID == "" {
			return "", nil, ErrInvalidActor
		}
		return string(auditdomain.ActorTypeAPIKey), &keyID, nil
	}
	return "", nil, ErrInvalidActor
}

// ensureGrouping keeps exactly one role link for subject so a key whose
// role changed does not keep the old grant.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := object
	if err := s.auditSvc.AuditLog(ctx, nil, actorType, actorID, auditdomain.ActionAuthorizationDenied, auditdomain.TargetAuthorization, &targetID, map[string]any{
		"object": object,
		"action": action,
	}); err != nil {
		s.log.Warn("failed to audit denied authorization", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	cashier := RoleSubject(apikeydomain.RoleCashier)
	accountant := RoleSubject(apikeydomain.RoleAccountant)
	admin := RoleSubject(apikeydomain.RoleAdmin)

	policies := [][]string{
		// Cashier permissions
		{cashier, ObjectFeeReceipt, ActionFeeView},
		{cashier, ObjectFeeReceipt, ActionFeeCollect},

		// Accountant permissions
		{accountant, ObjectFeeReceipt, ActionFeeUpdate},
		{accountant, ObjectReport, ActionReportView},
		{accountant, ObjectAuditLog, ActionAuditLogView},

		// Admin permissions
		{admin, ObjectFeeReceipt, ActionFeeDelete},
		{admin, ObjectFeeProfile, ActionFeeProfileSync},
		{admin, ObjectAPIKey, ActionAPIKeyView},
		{admin, ObjectAPIKey, ActionAPIKeyCreate},
		{admin, ObjectAPIKey, ActionAPIKeyRotate},
		{admin, ObjectAPIKey, ActionAPIKeyRevoke},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// each role inherits the one below it
	inheritance := [][]string{
		{accountant, cashier},
		{admin, accountant},
	}
	for _, link := range inheritance {
		if _, err := enforcer.AddGroupingPolicy(link); err != nil {
			return err
		}
	}
	return nil
}
