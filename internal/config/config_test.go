package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Starter()
	cfg.Portal.Username = "user@example.com"
	cfg.Portal.Password = "secret"
	cfg.Portal.ReportID = "12345"
	cfg.Storage.ConnectionString = "UseDevelopmentStorage=true"
	cfg.Storage.Container = "eon"
	cfg.Storage.Blob = "w1000.json"
	return cfg
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
portal:
  username: "user@example.com"
  password: "secret"
  report_id: "777"
  billing_start_month: 9
  billing_start_day: 15
  format: CSV
  timeout: 45s
storage:
  backend: s3
  container: "meter-bucket"
  blob: "w1000.json"
  s3:
    region: "eu-central-1"
    path_style: true
logging:
  level: "debug"
  format: "text"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.Portal.Username)
	assert.Equal(t, "777", cfg.Portal.ReportID)
	assert.Equal(t, 9, cfg.Portal.BillingStartMonth)
	assert.Equal(t, 15, cfg.Portal.BillingStartDay)
	assert.Equal(t, FormatCSV, cfg.Portal.Format)
	assert.Equal(t, 45*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, BackendS3, cfg.Storage.Backend)
	assert.Equal(t, "eu-central-1", cfg.Storage.S3.Region)
	assert.True(t, cfg.Storage.S3.PathStyle)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Defaults fill what the file leaves out
	assert.Equal(t, DefaultBaseURL, cfg.Portal.BaseURL)
	assert.Equal(t, TokenRegex, cfg.Portal.TokenStrategy)
	assert.Equal(t, AuthFailurePublishEmpty, cfg.Portal.OnAuthFailure)
	assert.Equal(t, 2*time.Minute, cfg.Storage.Timeout)

	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("EON_LOGIN", "env-user")
	t.Setenv("EON_PASS", "env-pass")
	t.Setenv("EON_REPORTID", "42")
	t.Setenv("BILLING_START_MONTH", "3")
	t.Setenv("BILLING_START_DAY", "1")
	t.Setenv("AzureWebJobsStorage", "DefaultEndpointsProtocol=https;AccountName=x;AccountKey=eA==")
	t.Setenv("OUTPUT_CONTAINER_NAME", "data")
	t.Setenv("OUTPUT_FILE_NAME", "eon.json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.Portal.Username)
	assert.Equal(t, "env-pass", cfg.Portal.Password)
	assert.Equal(t, "42", cfg.Portal.ReportID)
	assert.Equal(t, 3, cfg.Portal.BillingStartMonth)
	assert.Equal(t, BackendAzureBlob, cfg.Storage.Backend)
	assert.Equal(t, "data", cfg.Storage.Container)
	assert.Equal(t, "eon.json", cfg.Storage.Blob)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("portal:\n  report_id: \"file\"\n"), 0644))
	t.Setenv("EON_REPORTID", "env")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Portal.ReportID)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Starter()
	cfg.Portal.BillingStartMonth = 13
	cfg.Portal.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"portal.username",
		"portal.password",
		"portal.report_id",
		"billing_start_month must be 1-12",
		"portal.format",
		"storage.container",
		"storage.blob",
		"storage.connection_string",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateBillingDay(t *testing.T) {
	tests := []struct {
		month, day int
		ok         bool
	}{
		{1, 31, true},
		{2, 29, true},
		{2, 30, false},
		{4, 31, false},
		{6, 0, false},
	}
	for _, tt := range tests {
		cfg := validConfig()
		cfg.Portal.BillingStartMonth = tt.month
		cfg.Portal.BillingStartDay = tt.day
		err := cfg.Validate()
		if tt.ok {
			assert.NoError(t, err, "month %d day %d", tt.month, tt.day)
		} else {
			assert.Error(t, err, "month %d day %d", tt.month, tt.day)
		}
	}
}

func TestValidateBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = BackendS3
	assert.ErrorContains(t, cfg.Validate(), "storage.s3.region")

	cfg.Storage.S3.Region = "eu-west-1"
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "ftp"
	assert.ErrorContains(t, cfg.Validate(), "storage.backend")
}

func TestLocation(t *testing.T) {
	cfg := validConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Portal.Timezone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Portal.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()
	cfg.Portal.Format = FormatCSV

	require.NoError(t, Save(configPath, cfg))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Portal.ReportID, loaded.Portal.ReportID)
	assert.Equal(t, FormatCSV, loaded.Portal.Format)
	assert.Equal(t, cfg.Storage.Blob, loaded.Storage.Blob)
}
