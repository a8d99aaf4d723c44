package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Report formats offered by the portal
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Token extraction strategies
const (
	TokenRegex = "regex"
	TokenHTML  = "html"
)

// What to do when the portal login fails
const (
	AuthFailurePublishEmpty = "publish-empty"
	AuthFailureSkip         = "skip"
)

// Storage backends
const (
	BackendAzureBlob = "azblob"
	BackendS3        = "s3"
	BackendFile      = "file"
)

// Config holds the application configuration
type Config struct {
	Portal   PortalConfig   `mapstructure:"portal" yaml:"portal"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt,omitempty"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics,omitempty"`
}

// PortalConfig holds the W1000 portal credentials and report settings
type PortalConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Username          string        `mapstructure:"username" yaml:"username"`
	Password          string        `mapstructure:"password" yaml:"password"`
	ReportID          string        `mapstructure:"report_id" yaml:"report_id"`
	BillingStartMonth int           `mapstructure:"billing_start_month" yaml:"billing_start_month"`
	BillingStartDay   int           `mapstructure:"billing_start_day" yaml:"billing_start_day"`
	Format            string        `mapstructure:"format" yaml:"format"`                   // json or csv
	Timezone          string        `mapstructure:"timezone" yaml:"timezone,omitempty"`     // IANA name, CSV timestamps carry no zone
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`       // per HTTP request
	TokenStrategy     string        `mapstructure:"token_strategy" yaml:"token_strategy"`   // regex or html
	OnAuthFailure     string        `mapstructure:"on_auth_failure" yaml:"on_auth_failure"` // publish-empty or skip
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent,omitempty"`
}

// StorageConfig holds the destination object settings
type StorageConfig struct {
	Backend          string        `mapstructure:"backend" yaml:"backend"`
	ConnectionString string        `mapstructure:"connection_string" yaml:"connection_string,omitempty"`
	Container        string        `mapstructure:"container" yaml:"container"`
	Blob             string        `mapstructure:"blob" yaml:"blob"`
	Dir              string        `mapstructure:"dir" yaml:"dir,omitempty"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	S3               S3Config      `mapstructure:"s3" yaml:"s3,omitempty"`
}

// S3Config holds settings for the S3 backend. The container is used as the bucket.
type S3Config struct {
	Region          string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	PathStyle       bool   `mapstructure:"path_style" yaml:"path_style,omitempty"`
}

// ScheduleConfig controls the built-in timer trigger
type ScheduleConfig struct {
	Cron       string        `mapstructure:"cron" yaml:"cron"` // six fields, seconds first
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout,omitempty"`
	RunOnStart bool          `mapstructure:"run_on_start" yaml:"run_on_start,omitempty"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output,omitempty"`
	MaxAge int    `mapstructure:"max_age" yaml:"max_age,omitempty"` // days to keep rotated log files
}

// MQTTConfig holds MQTT broker settings for run status notifications
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker      string `mapstructure:"broker" yaml:"broker,omitempty"` // host:port
	Username    string `mapstructure:"username" yaml:"username,omitempty"`
	Password    string `mapstructure:"password" yaml:"password,omitempty"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix,omitempty"`
}

// MetricsConfig holds Prometheus Pushgateway settings
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url,omitempty"`
	Job            string `mapstructure:"job" yaml:"job,omitempty"`
}

// envBindings maps config keys to the environment variables the job is
// deployed with.
var envBindings = map[string]string{
	"portal.base_url":            "PORTAL_BASE_URL",
	"portal.username":            "EON_LOGIN",
	"portal.password":            "EON_PASS",
	"portal.report_id":           "EON_REPORTID",
	"portal.billing_start_month": "BILLING_START_MONTH",
	"portal.billing_start_day":   "BILLING_START_DAY",
	"portal.format":              "REPORT_FORMAT",
	"portal.timezone":            "PORTAL_TIMEZONE",
	"portal.timeout":             "PORTAL_TIMEOUT",
	"portal.token_strategy":      "TOKEN_STRATEGY",
	"portal.on_auth_failure":     "ON_AUTH_FAILURE",
	"portal.user_agent":          "PORTAL_USER_AGENT",

	"storage.backend":              "STORAGE_BACKEND",
	"storage.connection_string":    "AzureWebJobsStorage",
	"storage.container":            "OUTPUT_CONTAINER_NAME",
	"storage.blob":                 "OUTPUT_FILE_NAME",
	"storage.dir":                  "OUTPUT_DIR",
	"storage.timeout":              "STORAGE_TIMEOUT",
	"storage.s3.region":            "AWS_REGION",
	"storage.s3.endpoint":          "S3_ENDPOINT",
	"storage.s3.access_key_id":     "AWS_ACCESS_KEY_ID",
	"storage.s3.secret_access_key": "AWS_SECRET_ACCESS_KEY",
	"storage.s3.path_style":        "S3_PATH_STYLE",

	"schedule.cron":         "SCHEDULE",
	"schedule.run_timeout":  "RUN_TIMEOUT",
	"schedule.run_on_start": "RUN_ON_START",

	"logging.level":   "LOG_LEVEL",
	"logging.format":  "LOG_FORMAT",
	"logging.output":  "LOG_OUTPUT",
	"logging.max_age": "LOG_MAX_AGE",

	"mqtt.enabled":      "MQTT_ENABLED",
	"mqtt.broker":       "MQTT_BROKER",
	"mqtt.username":     "MQTT_USERNAME",
	"mqtt.password":     "MQTT_PASSWORD",
	"mqtt.topic_prefix": "MQTT_TOPIC_PREFIX",

	"metrics.pushgateway_url": "PUSHGATEWAY_URL",
	"metrics.job":             "METRICS_JOB",
}

// DefaultBaseURL is the W1000 portal root
const DefaultBaseURL = "https://energia.eon-hungaria.hu/W1000/"

// DefaultUserAgent is sent on every portal request
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

func setDefaults(v *viper.Viper) {
	v.SetDefault("portal.base_url", DefaultBaseURL)
	v.SetDefault("portal.billing_start_month", 1)
	v.SetDefault("portal.billing_start_day", 1)
	v.SetDefault("portal.format", FormatJSON)
	v.SetDefault("portal.timeout", 30*time.Second)
	v.SetDefault("portal.token_strategy", TokenRegex)
	v.SetDefault("portal.on_auth_failure", AuthFailurePublishEmpty)
	v.SetDefault("portal.user_agent", DefaultUserAgent)

	v.SetDefault("storage.backend", BackendAzureBlob)
	v.SetDefault("storage.dir", ".")
	v.SetDefault("storage.timeout", 2*time.Minute)

	v.SetDefault("schedule.cron", "0 0 */6 * * *")
	v.SetDefault("schedule.run_timeout", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("mqtt.topic_prefix", "meterfeed")
	v.SetDefault("metrics.job", "meterfeed")
}

// Load reads the config file (if it exists), then applies environment
// variable overrides and defaults. The result is not validated.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Portal.Format = strings.ToLower(strings.TrimSpace(cfg.Portal.Format))
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Starter returns a config populated with defaults, suitable for writing
// out as a template.
func Starter() *Config {
	return &Config{
		Portal: PortalConfig{
			BaseURL:           DefaultBaseURL,
			BillingStartMonth: 1,
			BillingStartDay:   1,
			Format:            FormatJSON,
			Timeout:           30 * time.Second,
			TokenStrategy:     TokenRegex,
			OnAuthFailure:     AuthFailurePublishEmpty,
		},
		Storage: StorageConfig{
			Backend: BackendAzureBlob,
			Timeout: 2 * time.Minute,
		},
		Schedule: ScheduleConfig{
			Cron:       "0 0 */6 * * *",
			RunTimeout: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate checks that every required field is present and in range.
// All problems are reported together.
func (c *Config) Validate() error {
	var problems []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, name+" is required")
		}
	}

	require(c.Portal.BaseURL, "portal.base_url")
	require(c.Portal.Username, "portal.username (EON_LOGIN)")
	require(c.Portal.Password, "portal.password (EON_PASS)")
	require(c.Portal.ReportID, "portal.report_id (EON_REPORTID)")

	if c.Portal.BillingStartMonth < 1 || c.Portal.BillingStartMonth > 12 {
		problems = append(problems, fmt.Sprintf("portal.billing_start_month must be 1-12, got %d", c.Portal.BillingStartMonth))
	} else if last := maxDay(time.Month(c.Portal.BillingStartMonth)); c.Portal.BillingStartDay < 1 || c.Portal.BillingStartDay > last {
		problems = append(problems, fmt.Sprintf("portal.billing_start_day must be 1-%d, got %d", last, c.Portal.BillingStartDay))
	}

	switch c.Portal.Format {
	case FormatJSON, FormatCSV:
	default:
		problems = append(problems, fmt.Sprintf("portal.format must be json or csv, got %q", c.Portal.Format))
	}
	switch c.Portal.TokenStrategy {
	case TokenRegex, TokenHTML:
	default:
		problems = append(problems, fmt.Sprintf("portal.token_strategy must be regex or html, got %q", c.Portal.TokenStrategy))
	}
	switch c.Portal.OnAuthFailure {
	case AuthFailurePublishEmpty, AuthFailureSkip:
	default:
		problems = append(problems, fmt.Sprintf("portal.on_auth_failure must be publish-empty or skip, got %q", c.Portal.OnAuthFailure))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}

	require(c.Storage.Container, "storage.container (OUTPUT_CONTAINER_NAME)")
	require(c.Storage.Blob, "storage.blob (OUTPUT_FILE_NAME)")
	switch c.Storage.Backend {
	case BackendAzureBlob:
		require(c.Storage.ConnectionString, "storage.connection_string (AzureWebJobsStorage)")
	case BackendS3:
		require(c.Storage.S3.Region, "storage.s3.region (AWS_REGION)")
	case BackendFile:
		require(c.Storage.Dir, "storage.dir (OUTPUT_DIR)")
	default:
		problems = append(problems, fmt.Sprintf("storage.backend must be azblob, s3 or file, got %q", c.Storage.Backend))
	}

	if c.MQTT.Enabled {
		require(c.MQTT.Broker, "mqtt.broker")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the zone CSV timestamps are interpreted in
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Portal.Timezone)
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("portal.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// maxDay returns the largest day a billing cycle may start on. February
// allows the 29th; the window calculation clamps it in common years.
func maxDay(m time.Month) int {
	switch m {
	case time.February:
		return 29
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}
