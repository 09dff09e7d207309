package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/hookdeck/railpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockOS struct {
	files   map[string][]byte
	envVars map[string]string
}

func (m *mockOS) Environ() map[string]string {
	env := make(map[string]string, len(m.envVars))
	for k, v := range m.envVars {
		env[k] = v
	}
	return env
}

func (m *mockOS) Stat(name string) (os.FileInfo, error) {
	if _, ok := m.files[name]; ok {
		return nil, nil
	}
	return nil, os.ErrNotExist
}

func (m *mockOS) ReadFile(name string) ([]byte, error) {
	if data, ok := m.files[name]; ok {
		return data, nil
	}
	return nil, os.ErrNotExist
}

func requiredEnv() map[string]string {
	return map[string]string{
		"LDB_TOKEN":         "test-token",
		"STATIONS_TO_QUERY": "NCL,RDG",
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.ParseWithOS(config.Flags{}, &mockOS{envVars: requiredEnv()})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"NCL", "RDG"}, cfg.StationsToQuery)
	assert.Equal(t, "logs", cfg.LogFileDirectory)
	assert.Equal(t, 10, cfg.LDBNumRows)
	assert.Equal(t, time.Minute, cfg.QueryInterval())
	assert.Equal(t, time.Duration(0), cfg.QueryPrecision())
	assert.Equal(t, time.Hour, cfg.RolloverInterval())
	assert.Equal(t, 6*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.False(t, cfg.Export.Enabled())
	assert.Empty(t, cfg.ConfigFilePath())
}

func TestParse_Sources(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string][]byte
		envVars map[string]string
		flags   config.Flags
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "yaml config file",
			files: map[string][]byte{
				"config.yaml": []byte(`
ldb_token: yaml-token
stations_to_query: [ncl, " rdg "]
log_file_directory: /var/lib/railpipe
query_frequency_seconds: 30
query_frequency_precision_seconds: 0.5
log_file_rollover_period_seconds: 900
export:
  bucket_url: s3://rail-archive?region=eu-west-2
  prefix: raw
  interval_seconds: 1800
`),
			},
			envVars: map[string]string{"CONFIG": "config.yaml"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "yaml-token", cfg.LDBToken)
				assert.Equal(t, []string{"NCL", "RDG"}, cfg.StationsToQuery)
				assert.Equal(t, "/var/lib/railpipe", cfg.LogFileDirectory)
				assert.Equal(t, 30*time.Second, cfg.QueryInterval())
				assert.Equal(t, 500*time.Millisecond, cfg.QueryPrecision())
				assert.Equal(t, 15*time.Minute, cfg.RolloverInterval())
				assert.True(t, cfg.Export.Enabled())
				assert.Equal(t, 30*time.Minute, cfg.Export.Interval())
				assert.Equal(t, 5*time.Minute, cfg.Export.UploadTimeout())
				assert.Equal(t, "config.yaml", cfg.ConfigFilePath())
			},
		},
		{
			name: "upper case yaml keys",
			files: map[string][]byte{
				"config.yml": []byte(`
LDB_TOKEN: upper-token
STATIONS_TO_QUERY: [NCL, kgx]
LOG_FILE_DIRECTORY: /srv/rail/logs
QUERY_FREQUENCY_SECONDS: 20
LOG_FILE_ROLLOVER_PERIOD_SECONDS: 600
EXPORT_BUCKET_URL: mem://
log_level: debug
`),
			},
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "upper-token", cfg.LDBToken)
				assert.Equal(t, []string{"NCL", "KGX"}, cfg.StationsToQuery)
				assert.Equal(t, "/srv/rail/logs", cfg.LogFileDirectory)
				assert.Equal(t, 20*time.Second, cfg.QueryInterval())
				assert.Equal(t, 10*time.Minute, cfg.RolloverInterval())
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.True(t, cfg.Export.Enabled())
				assert.Equal(t, "config.yml", cfg.ConfigFilePath())
			},
		},
		{
			name: "env overrides upper case yaml keys",
			files: map[string][]byte{
				"config.yml": []byte(`
LDB_TOKEN: upper-token
STATIONS_TO_QUERY: [NCL]
LOG_FILE_DIRECTORY: /srv/rail/logs
`),
			},
			envVars: map[string]string{"LOG_FILE_DIRECTORY": "/tmp/rail"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "/tmp/rail", cfg.LogFileDirectory)
				assert.Equal(t, []string{"NCL"}, cfg.StationsToQuery)
			},
		},
		{
			name: "env overrides yaml",
			files: map[string][]byte{
				"config.yaml": []byte(`
ldb_token: yaml-token
stations_to_query: [NCL]
query_frequency_seconds: 30
`),
			},
			envVars: map[string]string{
				"CONFIG":                  "config.yaml",
				"LDB_TOKEN":               "env-token",
				"QUERY_FREQUENCY_SECONDS": "15",
			},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "env-token", cfg.LDBToken)
				assert.Equal(t, []string{"NCL"}, cfg.StationsToQuery)
				assert.Equal(t, 15*time.Second, cfg.QueryInterval())
			},
		},
		{
			name: "default location is discovered",
			files: map[string][]byte{
				".railpipe.yaml": []byte(`
ldb_token: found
stations_to_query: [KGX]
`),
			},
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "found", cfg.LDBToken)
				assert.Equal(t, ".railpipe.yaml", cfg.ConfigFilePath())
			},
		},
		{
			name: "dotenv config file",
			files: map[string][]byte{
				"railpipe.env": []byte("LDB_TOKEN=dotenv-token\nSTATIONS_TO_QUERY=YRK\n"),
			},
			envVars: map[string]string{},
			flags:   config.Flags{Config: "railpipe.env"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "dotenv-token", cfg.LDBToken)
				assert.Equal(t, []string{"YRK"}, cfg.StationsToQuery)
			},
		},
		{
			name: "explicit dotenv flag loses to process env",
			files: map[string][]byte{
				"secrets.env": []byte("LDB_TOKEN=from-file\nSTATIONS_TO_QUERY=EDB\n"),
			},
			envVars: map[string]string{"LDB_TOKEN": "from-env"},
			flags:   config.Flags{DotEnv: "secrets.env"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "from-env", cfg.LDBToken)
				assert.Equal(t, []string{"EDB"}, cfg.StationsToQuery)
			},
		},
		{
			name:    "flags override everything",
			envVars: map[string]string{"LOG_FILE_DIRECTORY": "env-logs", "LOG_LEVEL": "warn"},
			flags:   config.Flags{LogDir: "flag-logs", Debug: true},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "flag-logs", cfg.LogFileDirectory)
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOS := &mockOS{
				files:   tt.files,
				envVars: tt.envVars,
			}
			for k, v := range requiredEnv() {
				if _, ok := mockOS.envVars[k]; !ok && tt.files == nil {
					mockOS.envVars[k] = v
				}
			}

			cfg, err := config.ParseWithOS(tt.flags, mockOS)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestParse_ConflictingConfigPaths(t *testing.T) {
	mockOS := &mockOS{
		files:   map[string][]byte{"a.yaml": nil, "b.yaml": nil},
		envVars: map[string]string{"CONFIG": "a.yaml"},
	}
	_, err := config.ParseWithOS(config.Flags{Config: "b.yaml"}, mockOS)
	assert.Error(t, err)
}

func TestParse_MissingConfigFile(t *testing.T) {
	_, err := config.ParseWithOS(config.Flags{Config: "missing.yaml"}, &mockOS{envVars: requiredEnv()})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			LogLevel:                     "info",
			LDBToken:                     "token",
			LDBNumRows:                   10,
			HTTPTimeoutSeconds:           30,
			StationsToQuery:              []string{"NCL"},
			LogFileDirectory:             "logs",
			QueryFrequencySeconds:        60,
			LogFileRolloverPeriodSeconds: 3600,
			ShutdownTimeoutSeconds:       6,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "missing token",
			mutate:  func(c *config.Config) { c.LDBToken = "" },
			wantErr: config.ErrMissingLDBToken,
		},
		{
			name:    "no stations",
			mutate:  func(c *config.Config) { c.StationsToQuery = nil },
			wantErr: config.ErrMissingStations,
		},
		{
			name:    "bad station code",
			mutate:  func(c *config.Config) { c.StationsToQuery = []string{"NEWC"} },
			wantErr: config.ErrInvalidStation,
		},
		{
			name:    "missing log directory",
			mutate:  func(c *config.Config) { c.LogFileDirectory = "" },
			wantErr: config.ErrMissingLogDirectory,
		},
		{
			name:    "zero query interval",
			mutate:  func(c *config.Config) { c.QueryFrequencySeconds = 0 },
			wantErr: config.ErrInvalidInterval,
		},
		{
			name:    "precision above interval",
			mutate:  func(c *config.Config) { c.LogFileRolloverPeriodPrecisionSeconds = 7200 },
			wantErr: config.ErrInvalidPrecision,
		},
		{
			name:    "too many rows",
			mutate:  func(c *config.Config) { c.LDBNumRows = 151 },
			wantErr: config.ErrInvalidNumRows,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *config.Config) { c.LogLevel = "verbose" },
			wantErr: config.ErrInvalidLogLevel,
		},
		{
			name: "export without scheme",
			mutate: func(c *config.Config) {
				c.Export = &config.ExportConfig{BucketURL: "rail-archive", IntervalSeconds: 60}
			},
			wantErr: config.ErrInvalidBucketURL,
		},
		{
			name: "negative upload timeout",
			mutate: func(c *config.Config) {
				c.Export = &config.ExportConfig{BucketURL: "mem://", IntervalSeconds: 60, UploadTimeoutSeconds: -1}
			},
			wantErr: config.ErrInvalidInterval,
		},
		{
			name: "export without interval",
			mutate: func(c *config.Config) {
				c.Export = &config.ExportConfig{BucketURL: "mem://"}
			},
			wantErr: config.ErrInvalidInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogConfigurationSummary_MasksSecrets(t *testing.T) {
	cfg, err := config.ParseWithOS(config.Flags{}, &mockOS{envVars: map[string]string{
		"LDB_TOKEN":         "super-secret",
		"STATIONS_TO_QUERY": "NCL",
		"EXPORT_BUCKET_URL": "azblob://archive?sas=abc",
	}})
	require.NoError(t, err)

	fields := cfg.LogConfigurationSummary()
	byKey := map[string]interface{}{}
	for _, f := range fields {
		switch {
		case f.String != "":
			byKey[f.Key] = f.String
		case f.Interface != nil:
			byKey[f.Key] = f.Interface
		default:
			byKey[f.Key] = f.Integer
		}
		assert.NotContains(t, f.String, "super-secret")
	}
	assert.Equal(t, int64(1), byKey["ldb_token_configured"])
	assert.Equal(t, "azblob://archive?***", byKey["export_bucket_url"])
}
