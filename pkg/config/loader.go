package config

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/crmtap/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. CRMTAP_START_DATE.
const EnvPrefix = "CRMTAP"

// Load reads the configuration file at path (json, yaml or toml, chosen by
// extension), applies ${VAR} substitution and CRMTAP_* environment overrides,
// and validates the result. An empty path loads from the environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator's --config flag
		if err != nil {
			return Config{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}

		v.SetConfigType(configType(path))
		content := substituteEnvVars(string(data))
		if err := v.ReadConfig(strings.NewReader(content)); err != nil {
			return Config{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file").
				WithDetail("path", path)
		}
	}

	// "token" is the legacy spelling of access_token
	if v.GetString("access_token") == "" && v.GetString("token") != "" {
		v.Set("access_token", v.GetString("token"))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// YAML renders the configuration with secrets redacted.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal YAML")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal YAML")
	}
	return buf.Bytes(), nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("refresh_token", "")
	v.SetDefault("access_token", "")
	v.SetDefault("token", "")
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")
	v.SetDefault("start_date", "")
	v.SetDefault("login_url", d.LoginURL)
	v.SetDefault("instance_url", "")
	v.SetDefault("api_version", d.APIVersion)
	v.SetDefault("page_size", d.PageSize)
	v.SetDefault("rate_limit_per_sec", d.RateLimitPerSec)
	v.SetDefault("retry_attempts", d.RetryAttempts)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("enable_tracing", d.EnableTracing)
	v.SetDefault("metrics_log_interval", d.MetricsLogInterval)
	v.SetDefault("checkpoint_db", "")
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR_NAME} with environment variable values in
// one pass. Substituted values are not rescanned, and a "${" that does not
// open a variable reference is left as is.
func substituteEnvVars(content string) string {
	return envRefPattern.ReplaceAllStringFunc(content, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}
