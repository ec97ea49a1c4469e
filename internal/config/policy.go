package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReviewPolicy carries the tunables of the review engine that operators may
// change without a restart.
type ReviewPolicy struct {
	MinPeerReviewers   int           `mapstructure:"minPeerReviewers"`
	PasswordLength     int           `mapstructure:"passwordLength"`
	DefaultDepartment  string        `mapstructure:"defaultDepartment"`
	ImportedDepartment string        `mapstructure:"importedDepartment"`
	DefaultPassword    string        `mapstructure:"defaultPassword"`
	DefaultCycleDays   int           `mapstructure:"defaultCycleDays"`
	AITimeout          time.Duration `mapstructure:"aiTimeout"`
	EmailDomain        string        `mapstructure:"emailDomain"`
}

func DefaultReviewPolicy() ReviewPolicy {
	return ReviewPolicy{
		MinPeerReviewers:   2,
		PasswordLength:     8,
		DefaultDepartment:  "General",
		ImportedDepartment: "Imported",
		DefaultPassword:    "",
		DefaultCycleDays:   30,
		AITimeout:          30 * time.Second,
		EmailDomain:        "nexus360.local",
	}
}

type ReviewPolicyHolder struct {
	current atomic.Value // holds ReviewPolicy
}

// StaticReviewPolicy returns a holder that never reloads.
func StaticReviewPolicy(policy ReviewPolicy) *ReviewPolicyHolder {
	holder := &ReviewPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// NewReviewPolicyHolder reads review.yml and keeps watching it.
func NewReviewPolicyHolder(log *zap.Logger) (*ReviewPolicyHolder, error) {
	log = log.Named("config.review_policy")

	v := viper.New()
	v.SetConfigName("review")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/nexus360/config")
	v.AddConfigPath("/etc/nexus360")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NEXUS360")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReviewPolicy()
	v.SetDefault("review.minPeerReviewers", defaults.MinPeerReviewers)
	v.SetDefault("review.passwordLength", defaults.PasswordLength)
	v.SetDefault("review.defaultDepartment", defaults.DefaultDepartment)
	v.SetDefault("review.importedDepartment", defaults.ImportedDepartment)
	v.SetDefault("review.defaultPassword", defaults.DefaultPassword)
	v.SetDefault("review.defaultCycleDays", defaults.DefaultCycleDays)
	v.SetDefault("review.aiTimeout", defaults.AITimeout)
	v.SetDefault("review.emailDomain", defaults.EmailDomain)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var policy ReviewPolicy
	if err := v.UnmarshalKey("review", &policy); err != nil {
		return nil, err
	}
	if err := validateReviewPolicy(policy); err != nil {
		return nil, err
	}

	holder := StaticReviewPolicy(policy)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReviewPolicy
		if err := v.UnmarshalKey("review", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateReviewPolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("review policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReviewPolicyHolder) Get() ReviewPolicy {
	if h == nil {
		return DefaultReviewPolicy()
	}
	policy, ok := h.current.Load().(ReviewPolicy)
	if !ok {
		return DefaultReviewPolicy()
	}
	return policy
}

func validateReviewPolicy(p ReviewPolicy) error {
	if p.MinPeerReviewers < 0 {
		return errors.New("review.minPeerReviewers cannot be negative")
	}
	if p.PasswordLength < 6 {
		return errors.New("review.passwordLength must be at least 6")
	}
	if strings.TrimSpace(p.DefaultDepartment) == "" || strings.TrimSpace(p.ImportedDepartment) == "" {
		return errors.New("review departments cannot be empty")
	}
	if p.DefaultCycleDays <= 0 {
		return errors.New("review.defaultCycleDays must be positive")
	}
	if p.AITimeout <= 0 {
		return errors.New("review.aiTimeout must be positive")
	}
	if strings.TrimSpace(p.EmailDomain) == "" {
		return errors.New("review.emailDomain cannot be empty")
	}
	return nil
}
