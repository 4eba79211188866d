package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RefundPolicy decides how much of the customer payment comes back on a
// cancellation and which parties still get paid for work already done.
type RefundPolicy struct {
	Stage                string `mapstructure:"stage"`
	RefundBps            int64  `mapstructure:"refundBps"`
	CompensateRestaurant bool   `mapstructure:"compensateRestaurant"`
	CompensateDelivery   bool   `mapstructure:"compensateDelivery"`
}

type CancellationPolicy struct {
	Refunds []RefundPolicy `mapstructure:"refunds"`
}

func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		Refunds: []RefundPolicy{
			{Stage: "pre_accept", RefundBps: 10000},
			{Stage: "post_accept", RefundBps: 10000},
			{Stage: "post_cook", RefundBps: 5000, CompensateRestaurant: true},
			{Stage: "post_pickup", RefundBps: 0, CompensateRestaurant: true, CompensateDelivery: true},
		},
	}
}

// DefaultRefundPolicy resolves a stage against the built-in policy,
// used when no PolicyStore is wired.
func DefaultRefundPolicy(stage string) RefundPolicy {
	for _, p := range DefaultCancellationPolicy().Refunds {
		if p.Stage == stage {
			return p
		}
	}
	// Unknown stage: full refund is the safe default for the customer.
	return RefundPolicy{Stage: stage, RefundBps: 10000}
}

// PolicyStore holds the cancellation policy loaded from a mounted
// config file, hot-reloaded on change so refund rates can move without
// a deploy.
type PolicyStore struct {
	current atomic.Value // holds CancellationPolicy
}

func NewPolicyStore() (*PolicyStore, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/settleway/config")
	v.AddConfigPath("/etc/settleway")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SETTLEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultCancellationPolicy()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else {
		if err := v.UnmarshalKey("cancellation", &cfg); err != nil {
			return nil, err
		}
	}
	if err := validateCancellationPolicy(cfg); err != nil {
		return nil, err
	}

	store := &PolicyStore{}
	store.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CancellationPolicy
		if err := v.UnmarshalKey("cancellation", &updated); err != nil {
			log.Printf("[policy-config] reload failed: %v", err)
			return
		}
		if err := validateCancellationPolicy(updated); err != nil {
			log.Printf("[policy-config] invalid config ignored: %v", err)
			return
		}
		store.current.Store(updated)
		log.Printf("[policy-config] reloaded from %s", e.Name)
	})

	return store, nil
}

func (s *PolicyStore) Get() CancellationPolicy {
	return s.current.Load().(CancellationPolicy)
}

// RefundFor resolves the policy for a cancellation stage, falling back
// to the built-in defaults when the stage is not configured.
func (s *PolicyStore) RefundFor(stage string) RefundPolicy {
	for _, p := range s.Get().Refunds {
		if p.Stage == stage {
			return p
		}
	}
	return DefaultRefundPolicy(stage)
}

func validateCancellationPolicy(cfg CancellationPolicy) error {
	if len(cfg.Refunds) == 0 {
		return errors.New("cancellation.refunds cannot be empty")
	}
	for _, p := range cfg.Refunds {
		if p.RefundBps < 0 || p.RefundBps > 10000 {
			return errors.New("cancellation refundBps must be within 0..10000")
		}
	}
	return nil
}
