package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/feeledger/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeySecretBytes         = 32
	apiKeyRotationGracePeriod = 24 * time.Hour
	lastUsedResolution        = time.Minute
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     apikeydomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     apikeydomain.Repository
	genID    *snowflake.Node
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func New(p Params) apikeydomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("apikey.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		auditSvc: p.AuditSvc,
		clock:    clk,
	}
}

func (s *Service) List(ctx context.Context) ([]apikeydomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, s.toResponse(&items[i]))
	}

	return resp, nil
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}
	role, ok := apikeydomain.ParseRole(req.Role)
	if !ok {
		return nil, apikeydomain.ErrInvalidRole
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := newKeyID(id)
	plain, hash, err := generateAPIKey(keyID)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		KeyID:     keyID,
		Name:      name,
		Role:      role,
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, key); err != nil {
			return err
		}
		return s.audit(ctx, tx, auditdomain.ActionAPIKeyCreate, key.KeyID, map[string]any{
			"name": name,
			"role": role,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("api key created", zap.String("key_id", key.KeyID), zap.String("role", role))
	return &apikeydomain.SecretResponse{KeyID: key.KeyID, Role: role, APIKey: plain}, nil
}

func (s *Service) Rotate(ctx context.Context, keyID string) (*apikeydomain.SecretResponse, error) {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var result *apikeydomain.SecretResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByKeyID(ctx, tx, trimmed)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if current == nil || !current.Usable(now) {
			return apikeydomain.ErrNotFound
		}

		current.ExpiresAt = ptrTime(now.Add(apiKeyRotationGracePeriod))
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		id := s.genID.Generate()
		newKeyID := newKeyID(id)
		plain, hash, err := generateAPIKey(newKeyID)
		if err != nil {
			return err
		}

		rotatedFrom := current.KeyID
		next := &apikeydomain.APIKey{
			ID:               id,
			KeyID:            newKeyID,
			Name:             current.Name,
			Role:             current.Role,
			KeyHash:          hash,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
			RotatedFromKeyID: &rotatedFrom,
		}

		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, auditdomain.ActionAPIKeyRotate, next.KeyID, map[string]any{
			"rotated_from": rotatedFrom,
		}); err != nil {
			return err
		}

		result = &apikeydomain.SecretResponse{KeyID: next.KeyID, Role: next.Role, APIKey: plain}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key, err := s.repo.FindByKeyID(ctx, tx, trimmed)
		if err != nil {
			return err
		}
		if key == nil {
			return apikeydomain.ErrNotFound
		}

		now := s.clock.Now()
		key.IsActive = false
		key.UpdatedAt = now
		if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
			key.ExpiresAt = &now
		}
		if err := s.repo.Update(ctx, tx, key); err != nil {
			return err
		}
		return s.audit(ctx, tx, auditdomain.ActionAPIKeyRevoke, key.KeyID, nil)
	})
}

func (s *Service) Authenticate(ctx context.Context, raw string) (*apikeydomain.APIKey, error) {
	raw = strings.TrimSpace(raw)
	claimedID, ok := apikeydomain.KeyIDFromSecret(raw)
	if !ok {
		return nil, apikeydomain.ErrInvalidKey
	}

	key, err := s.repo.FindByHash(ctx, s.db, apikeydomain.HashAPIKey(raw))
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if key == nil || !key.Usable(now) {
		s.log.Info("api key rejected", zap.String("claimed_key_id", claimedID))
		return nil, apikeydomain.ErrInvalidKey
	}

	if key.LastUsedAt == nil || now.Sub(*key.LastUsedAt) >= lastUsedResolution {
		if err := s.repo.TouchLastUsed(ctx, s.db, key.KeyID, now); err != nil {
			s.log.Warn("failed to record api key usage", zap.String("key_id", key.KeyID), zap.Error(err))
		} else {
			key.LastUsedAt = &now
		}
	}
	return key, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action, keyID string, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	return s.auditSvc.AuditLog(ctx, tx, "", nil, action, auditdomain.TargetAPIKey, &keyID, metadata)
}

func (s *Service) toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:            key.KeyID,
		Name:             key.Name,
		Role:             key.Role,
		IsActive:         key.IsActive,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	plain := apikeydomain.FormatSecret(keyID, hex.EncodeToString(secret))
	return plain, apikeydomain.HashAPIKey(plain), nil
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

func ptrTime(value time.Time) *time.Time {
	return &value
}
