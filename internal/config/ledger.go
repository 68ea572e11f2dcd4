package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	SequenceScopeInstitute = "institute"
	SequenceScopeBranch    = "branch"
)

// LedgerConfig controls receipt numbering and per-student locking.
type LedgerConfig struct {
	ReceiptNumberTemplate string        `mapstructure:"receiptNumberTemplate"`
	SequenceScope         string        `mapstructure:"sequenceScope"`
	LockTimeout           time.Duration `mapstructure:"lockTimeout"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		ReceiptNumberTemplate: "RCPT-{SEQ6}",
		SequenceScope:         SequenceScopeInstitute,
		LockTimeout:           5 * time.Second,
	}
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

// NewStaticLedgerConfigHolder returns a holder that never reloads.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewLedgerConfigHolder reads ledger.yml and watches it for changes.
func NewLedgerConfigHolder(cfg Config, log *zap.Logger) (*LedgerConfigHolder, error) {
	log = log.Named("config.ledger")
	v := viper.New()

	v.SetConfigName("ledger")
	v.SetConfigType("yml")
	for _, path := range cfg.LedgerConfigPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("FEELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.receiptNumberTemplate", defaults.ReceiptNumberTemplate)
	v.SetDefault("ledger.sequenceScope", defaults.SequenceScope)
	v.SetDefault("ledger.lockTimeout", defaults.LockTimeout)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	current, err := unmarshalLedgerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticLedgerConfigHolder(current)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := unmarshalLedgerConfig(v)
			if err != nil {
				log.Warn("invalid ledger config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("ledger config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	return h.current.Load().(LedgerConfig)
}

func unmarshalLedgerConfig(v *viper.Viper) (LedgerConfig, error) {
	var cfg LedgerConfig
	if err := v.UnmarshalKey("ledger", &cfg); err != nil {
		return LedgerConfig{}, err
	}
	cfg.ReceiptNumberTemplate = strings.TrimSpace(cfg.ReceiptNumberTemplate)
	cfg.SequenceScope = strings.ToLower(strings.TrimSpace(cfg.SequenceScope))
	if err := ValidateLedgerConfig(cfg); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}

func ValidateLedgerConfig(cfg LedgerConfig) error {
	if !strings.Contains(cfg.ReceiptNumberTemplate, "{SEQ") {
		return errors.New("ledger.receiptNumberTemplate must contain a {SEQ} token")
	}
	switch cfg.SequenceScope {
	case SequenceScopeInstitute:
	case SequenceScopeBranch:
		// branch counters overlap, so the branch code must be part of the number
		if !strings.Contains(cfg.ReceiptNumberTemplate, "{SCOPE}") {
			return errors.New("ledger.receiptNumberTemplate must contain {SCOPE} when sequenceScope is branch")
		}
	default:
		return fmt.Errorf("ledger.sequenceScope %q is not supported", cfg.SequenceScope)
	}
	if cfg.LockTimeout <= 0 {
		return errors.New("ledger.lockTimeout must be positive")
	}
	return nil
}
