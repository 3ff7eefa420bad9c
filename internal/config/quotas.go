package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ContractTypeIndividual = "individual"
	ContractTypeAgency     = "agency"
	ContractTypeFranchise  = "franchise"
)

// PlanQuota caps what a contract of a given type may provision.
type PlanQuota struct {
	MaxStores      int `mapstructure:"maxStores"`
	MaxUsers       int `mapstructure:"maxUsers"`
	MaxCustomRoles int `mapstructure:"maxCustomRoles"`
}

// QuotaConfig holds the plan quota table keyed by contract type.
type QuotaConfig struct {
	Plans map[string]PlanQuota `mapstructure:"plans"`
}

func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		Plans: map[string]PlanQuota{
			ContractTypeIndividual: {MaxStores: 3, MaxUsers: 3, MaxCustomRoles: 0},
			ContractTypeAgency:     {MaxStores: 50, MaxUsers: 25, MaxCustomRoles: 10},
			ContractTypeFranchise:  {MaxStores: 200, MaxUsers: 100, MaxCustomRoles: 25},
		},
	}
}

type QuotaHolder struct {
	current atomic.Value // holds QuotaConfig
}

// NewStaticQuotaHolder returns a holder that never reloads.
func NewStaticQuotaHolder(cfg QuotaConfig) *QuotaHolder {
	holder := &QuotaHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewQuotaHolder(log *zap.Logger) (*QuotaHolder, error) {
	v := viper.New()

	v.SetConfigName("quotas")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/accessd")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ACCESSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := DefaultQuotaConfig()
	if fileLoaded {
		if err := v.UnmarshalKey("quotas", &cfg); err != nil {
			return nil, err
		}
	}
	if err := validateQuotaConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticQuotaHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated QuotaConfig
		if err := v.UnmarshalKey("quotas", &updated); err != nil {
			log.Warn("quota config reload failed", zap.Error(err))
			return
		}
		if err := validateQuotaConfig(updated); err != nil {
			log.Warn("invalid quota config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("quota config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *QuotaHolder) Get() QuotaConfig {
	return h.current.Load().(QuotaConfig)
}

// For returns the quota for a contract type, falling back to the individual plan.
func (h *QuotaHolder) For(contractType string) PlanQuota {
	cfg := h.Get()
	if quota, ok := cfg.Plans[strings.ToLower(strings.TrimSpace(contractType))]; ok {
		return quota
	}
	return cfg.Plans[ContractTypeIndividual]
}

func validateQuotaConfig(cfg QuotaConfig) error {
	for _, contractType := range []string{ContractTypeIndividual, ContractTypeAgency, ContractTypeFranchise} {
		quota, ok := cfg.Plans[contractType]
		if !ok {
			return fmt.Errorf("quotas.plans.%s is required", contractType)
		}
		if quota.MaxStores < 0 || quota.MaxUsers < 1 || quota.MaxCustomRoles < 0 {
			return fmt.Errorf("quotas.plans.%s has invalid limits", contractType)
		}
	}
	return nil
}
