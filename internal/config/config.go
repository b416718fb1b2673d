// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"astro-referrals/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// IntakeRateLimit caps activation events accepted per user per minute.
	IntakeRateLimit int `yaml:"intake_rate_limit"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// ReferralConfig holds the abuse thresholds and reward sizes of the program.
type ReferralConfig struct {
	MinAccountAge    time.Duration `yaml:"min_account_age"`
	VelocityCap      int           `yaml:"velocity_cap"`
	VelocityWindow   time.Duration `yaml:"velocity_window"`
	MaxActivationsIP int           `yaml:"max_activations_per_ip"`
	ReferrerDays     int           `yaml:"referrer_days"`
	ReferredDays     int           `yaml:"referred_days"`
	ProcessorTimeout time.Duration `yaml:"processor_timeout"`
	Tiers            []model.Tier  `yaml:"tiers"`
}

type StripeConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type FirebaseConfig struct {
	ProjectID       string  `yaml:"project_id"`
	CredentialsFile string  `yaml:"credentials_file"`
	SendRate        float64 `yaml:"send_rate"` // messages per second
	SendBurst       int     `yaml:"send_burst"`
}

type NotificationsConfig struct {
	Locale string `yaml:"locale"`
}

type AuthConfig struct {
	ServiceTokenSecret string `yaml:"service_token_secret"`
	Issuer             string `yaml:"issuer"`
}

type WorkersConfig struct {
	Notifications int `yaml:"notifications"`
}

type JobsConfig struct {
	StatsInterval         time.Duration `yaml:"stats_interval"`
	TierReconcileInterval time.Duration `yaml:"tier_reconcile_interval"`
	// TierReconcileLookback is how far back the reconciler looks for activations.
	TierReconcileLookback time.Duration `yaml:"tier_reconcile_lookback"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Referral ReferralConfig `yaml:"referral"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Auth     AuthConfig     `yaml:"auth"`
	Workers  WorkersConfig  `yaml:"workers"`
	Jobs     JobsConfig     `yaml:"jobs"`

	Notifications NotificationsConfig `yaml:"notifications"`

	Runtime RuntimeConfig `yaml:"-"`
}

// RequestTimeoutMargin is the request time left for the guards and the lock
// after both processor calls.
const RequestTimeoutMargin = 3 * time.Second

// DefaultTiers are used when the config file lists none.
var DefaultTiers = []model.Tier{
	{Name: "Rising Star", Referrals: 3, BonusDays: 14},
	{Name: "Constellation", Referrals: 5, BonusDays: 30},
	{Name: "Galaxy", Referrals: 10, BonusDays: 90},
}

// LoadConfig reads the YAML file at path. A .env file next to the process is
// loaded first so ${VAR} references in the YAML can be resolved.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse expands environment references, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.IntakeRateLimit <= 0 {
		cfg.HTTP.IntakeRateLimit = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}

	r := &cfg.Referral
	if r.MinAccountAge <= 0 {
		r.MinAccountAge = 2 * time.Hour
	}
	if r.VelocityCap <= 0 {
		r.VelocityCap = 10
	}
	if r.VelocityWindow <= 0 {
		r.VelocityWindow = 24 * time.Hour
	}
	if r.MaxActivationsIP <= 0 {
		r.MaxActivationsIP = 3
	}
	if r.ReferrerDays == 0 {
		r.ReferrerDays = 7
	}
	if r.ReferredDays == 0 {
		r.ReferredDays = 30
	}
	if r.ProcessorTimeout <= 0 {
		r.ProcessorTimeout = 5 * time.Second
	}
	if len(r.Tiers) == 0 {
		r.Tiers = append([]model.Tier(nil), DefaultTiers...)
	}
	sort.SliceStable(r.Tiers, func(i, j int) bool { return r.Tiers[i].Referrals < r.Tiers[j].Referrals })

	if cfg.Firebase.SendRate <= 0 {
		cfg.Firebase.SendRate = 50
	}
	if cfg.Firebase.SendBurst <= 0 {
		cfg.Firebase.SendBurst = 10
	}
	if cfg.Notifications.Locale == "" {
		cfg.Notifications.Locale = "en"
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "astro-web"
	}
	if cfg.Workers.Notifications <= 0 {
		cfg.Workers.Notifications = 4
	}
	if cfg.Jobs.StatsInterval <= 0 {
		cfg.Jobs.StatsInterval = time.Minute
	}
	if cfg.Jobs.TierReconcileInterval <= 0 {
		cfg.Jobs.TierReconcileInterval = 15 * time.Minute
	}
	if cfg.Jobs.TierReconcileLookback <= 0 {
		cfg.Jobs.TierReconcileLookback = 24 * time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Referral.ReferrerDays < 0 || cfg.Referral.ReferredDays < 0 {
		return errors.New("referral reward days must be positive")
	}
	// both reward legs may each wait the full processor timeout
	if floor := 2*cfg.Referral.ProcessorTimeout + RequestTimeoutMargin; cfg.HTTP.RequestTimeout < floor {
		return fmt.Errorf("http.request_timeout must be at least %s (2 x referral.processor_timeout + %s)", floor, RequestTimeoutMargin)
	}
	prev := 0
	seen := map[string]bool{}
	for _, t := range cfg.Referral.Tiers {
		if t.Name == "" || t.Referrals <= prev || t.BonusDays <= 0 {
			return fmt.Errorf("referral.tiers: invalid tier %q", t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("referral.tiers: duplicate tier %q", t.Name)
		}
		seen[t.Name] = true
		prev = t.Referrals
	}
	return nil
}

// ReferrerExtension is the referrer's reward length.
func (r ReferralConfig) ReferrerExtension() time.Duration {
	return time.Duration(r.ReferrerDays) * 24 * time.Hour
}

// ReferredExtension is the referred user's reward length.
func (r ReferralConfig) ReferredExtension() time.Duration {
	return time.Duration(r.ReferredDays) * 24 * time.Hour
}
