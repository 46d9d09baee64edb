// Package config provides application configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Keys. Each key is read from the upper-cased environment variable of the
// same name (log_level -> LOG_LEVEL).
const (
	KeyPort                  = "port"
	KeyWebhookSecret         = "webhook_secret"
	KeyGitHubAppID           = "github_app_id"
	KeyGitHubInstallationID  = "github_installation_id"
	KeyGitHubPrivateKey      = "github_private_key"
	KeyLogLevel              = "log_level"
	KeyChartDir              = "chart_dir"
	KeyAppName               = "app_name"
	KeyAppURL                = "app_url"
	KeyMetricPrefix          = "metric_prefix"
	KeyHelpersConformance    = "helpers_conformance"
	KeyArgoAppsRepo          = "argo_apps_repo"
	KeyArgoAppsBranch        = "argo_apps_branch"
	KeyArgoAppsLocalPath     = "argo_apps_local_path"
	KeyArgoAppsSyncInterval  = "argo_apps_sync_interval"
	KeyArgoAppsFolderPattern = "argo_apps_folder_pattern"
	KeyOTelEnabled           = "otel_enabled"

	// Read by chart-identctl only.
	KeyGitHubToken = "github_token"
)

// Config holds the application configuration.
type Config struct {
	Port                 int
	WebhookSecret        string
	GitHubAppID          int64
	GitHubInstallationID int64
	GitHubPrivateKey     string // PEM file contents
	LogLevel             string

	ChartDir           string // repository directory holding one chart per subdirectory
	AppName            string // check run name and comment marker
	AppURL             string
	MetricPrefix       string
	HelpersConformance bool // render chart helpers and compare with the resolver

	// Argo CD integration (optional)
	ArgoAppsRepo          string        // Git repo containing Argo apps (e.g., "https://github.com/org/gitops")
	ArgoAppsBranch        string        // empty means the remote default branch
	ArgoAppsLocalPath     string        // Local path for clone
	ArgoAppsSyncInterval  time.Duration // How often to sync repo
	ArgoAppsFolderPattern string        // e.g., "apps/{chartName}/{envName}"

	OTelEnabled bool
}

// NewViper returns a viper instance reading the environment, with every
// default applied. The CLI binds its flags to the same instance.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyChartDir, "charts")
	v.SetDefault(KeyAppName, "chart-ident")
	v.SetDefault(KeyMetricPrefix, "chart_ident")
	v.SetDefault(KeyHelpersConformance, true)
	v.SetDefault(KeyArgoAppsLocalPath, "/tmp/chart-ident-argocd")
	v.SetDefault(KeyArgoAppsSyncInterval, time.Hour)
	v.SetDefault(KeyArgoAppsFolderPattern, "{chartName}/{envName}")
	v.SetDefault(KeyOTelEnabled, false)
	return v
}

// Load reads the service configuration from the environment and validates
// the required GitHub App fields.
func Load() (Config, error) {
	return FromViper(NewViper())
}

// FromViper builds a Config from v. Values are converted strictly: a
// malformed number, bool or duration is an error, not a zero value.
func FromViper(v *viper.Viper) (Config, error) {
	var (
		cfg Config
		err error
	)

	if cfg.Port, err = cast.ToIntE(v.Get(KeyPort)); err != nil {
		return Config{}, invalid(KeyPort, v, err)
	}

	if cfg.WebhookSecret, err = required(v, KeyWebhookSecret); err != nil {
		return Config{}, err
	}
	if cfg.GitHubAppID, err = requiredInt64(v, KeyGitHubAppID); err != nil {
		return Config{}, err
	}
	if cfg.GitHubInstallationID, err = requiredInt64(v, KeyGitHubInstallationID); err != nil {
		return Config{}, err
	}
	if cfg.GitHubPrivateKey, err = required(v, KeyGitHubPrivateKey); err != nil {
		return Config{}, err
	}

	cfg.LogLevel = v.GetString(KeyLogLevel)
	cfg.ChartDir = strings.Trim(v.GetString(KeyChartDir), "/")
	cfg.AppName = v.GetString(KeyAppName)
	cfg.AppURL = v.GetString(KeyAppURL)
	cfg.MetricPrefix = v.GetString(KeyMetricPrefix)

	if cfg.HelpersConformance, err = cast.ToBoolE(v.Get(KeyHelpersConformance)); err != nil {
		return Config{}, invalid(KeyHelpersConformance, v, err)
	}
	if cfg.OTelEnabled, err = cast.ToBoolE(v.Get(KeyOTelEnabled)); err != nil {
		return Config{}, invalid(KeyOTelEnabled, v, err)
	}

	if err := loadArgoConfig(v, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadArgoConfig(v *viper.Viper, cfg *Config) error {
	cfg.ArgoAppsRepo = v.GetString(KeyArgoAppsRepo)
	if cfg.ArgoAppsRepo == "" {
		return nil // Argo integration is optional
	}

	cfg.ArgoAppsBranch = v.GetString(KeyArgoAppsBranch)
	cfg.ArgoAppsLocalPath = v.GetString(KeyArgoAppsLocalPath)
	cfg.ArgoAppsFolderPattern = v.GetString(KeyArgoAppsFolderPattern)

	dur, err := cast.ToDurationE(v.Get(KeyArgoAppsSyncInterval))
	if err != nil {
		return invalid(KeyArgoAppsSyncInterval, v, err)
	}
	if dur <= 0 {
		return fmt.Errorf("%s must be positive, got %s", envName(KeyArgoAppsSyncInterval), dur)
	}
	cfg.ArgoAppsSyncInterval = dur
	return nil
}

func required(v *viper.Viper, key string) (string, error) {
	s := v.GetString(key)
	if s == "" {
		return "", fmt.Errorf("%s is required", envName(key))
	}
	return s, nil
}

func requiredInt64(v *viper.Viper, key string) (int64, error) {
	if !v.IsSet(key) || v.GetString(key) == "" {
		return 0, fmt.Errorf("%s is required", envName(key))
	}
	id, err := cast.ToInt64E(v.Get(key))
	if err != nil {
		return 0, invalid(key, v, err)
	}
	return id, nil
}

func invalid(key string, v *viper.Viper, err error) error {
	return fmt.Errorf("invalid %s %q: %w", envName(key), v.GetString(key), err)
}

func envName(key string) string {
	return strings.ToUpper(key)
}
