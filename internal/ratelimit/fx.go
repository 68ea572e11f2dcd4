package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/feeledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
)

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

// NewLimiter returns nil when rate limiting is disabled. A configured redis
// client makes the buckets shared across replicas.
func NewLimiter(p Params) Limiter {
	cfg := p.Config.RateLimit
	log := p.Log.Named("ratelimit")
	if !cfg.Enabled || cfg.Rate <= 0 || cfg.Burst <= 0 {
		log.Info("api key rate limiting disabled")
		return nil
	}

	if p.Redis != nil {
		log.Info("using redis rate limiter", zap.Float64("rate", cfg.Rate), zap.Int("burst", cfg.Burst))
		return NewTokenBucket(p.Redis, cfg.Rate, cfg.Burst)
	}
	log.Info("using in-process rate limiter", zap.Float64("rate", cfg.Rate), zap.Int("burst", cfg.Burst))
	return NewLocalLimiter(cfg.Rate, cfg.Burst)
}
