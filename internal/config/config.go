package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	Namespace = "Railpipe"
)

func getConfigLocations() []string {
	return []string{
		// Relative paths
		"config.yml",
		".env",
		".railpipe.yaml",
		"config/railpipe.yaml",
		"config/railpipe/config.yaml",
		"config/railpipe/.env",

		// Container-friendly absolute paths
		"/config/railpipe.yaml",
		"/config/railpipe/config.yaml",
		"/config/railpipe/.env",
	}
}

// Flags are the command line options that influence configuration.
type Flags struct {
	Config string
	DotEnv string
	LogDir string
	Debug  bool
}

type Config struct {
	configPath string

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
	Debug     bool   `yaml:"debug" env:"DEBUG"`

	// Upstream
	LDBToken           string `yaml:"ldb_token" env:"LDB_TOKEN"`
	LDBEndpoint        string `yaml:"ldb_endpoint" env:"LDB_ENDPOINT"`
	LDBNumRows         int    `yaml:"ldb_num_rows" env:"LDB_NUM_ROWS"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds" env:"HTTP_TIMEOUT_SECONDS"`

	// Ingest
	StationsToQuery                []string `yaml:"stations_to_query" env:"STATIONS_TO_QUERY" envSeparator:","`
	LogFileDirectory               string   `yaml:"log_file_directory" env:"LOG_FILE_DIRECTORY"`
	QueryFrequencySeconds          float64  `yaml:"query_frequency_seconds" env:"QUERY_FREQUENCY_SECONDS"`
	QueryFrequencyPrecisionSeconds float64  `yaml:"query_frequency_precision_seconds" env:"QUERY_FREQUENCY_PRECISION_SECONDS"`

	// Rotation
	LogFileRolloverPeriodSeconds          float64 `yaml:"log_file_rollover_period_seconds" env:"LOG_FILE_ROLLOVER_PERIOD_SECONDS"`
	LogFileRolloverPeriodPrecisionSeconds float64 `yaml:"log_file_rollover_period_precision_seconds" env:"LOG_FILE_ROLLOVER_PERIOD_PRECISION_SECONDS"`

	ShutdownTimeoutSeconds float64 `yaml:"shutdown_timeout_seconds" env:"SHUTDOWN_TIMEOUT_SECONDS"`

	Export *ExportConfig `yaml:"export"`
}

type ExportConfig struct {
	BucketURL            string  `yaml:"bucket_url" env:"EXPORT_BUCKET_URL"`
	Prefix               string  `yaml:"prefix" env:"EXPORT_PREFIX"`
	IntervalSeconds      float64 `yaml:"interval_seconds" env:"EXPORT_INTERVAL_SECONDS"`
	PrecisionSeconds     float64 `yaml:"precision_seconds" env:"EXPORT_PRECISION_SECONDS"`
	UploadTimeoutSeconds float64 `yaml:"upload_timeout_seconds" env:"EXPORT_UPLOAD_TIMEOUT_SECONDS"`
}

// Enabled reports whether archived files should be exported.
func (c *ExportConfig) Enabled() bool {
	return c != nil && c.BucketURL != ""
}

func (c *ExportConfig) Interval() time.Duration {
	return seconds(c.IntervalSeconds)
}

func (c *ExportConfig) Precision() time.Duration {
	return seconds(c.PrecisionSeconds)
}

func (c *ExportConfig) UploadTimeout() time.Duration {
	return seconds(c.UploadTimeoutSeconds)
}

func (c *Config) initDefaults() {
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.LDBNumRows = 10
	c.HTTPTimeoutSeconds = 30
	c.LogFileDirectory = "logs"
	c.QueryFrequencySeconds = 60
	c.LogFileRolloverPeriodSeconds = 3600
	c.ShutdownTimeoutSeconds = 6
	c.Export = &ExportConfig{
		Prefix:               "raw",
		IntervalSeconds:      3600,
		UploadTimeoutSeconds: 300,
	}
}

func (c *Config) parseConfigFile(flagPath string, environment map[string]string, osInterface OSInterface) error {
	// Get config file path from flag or env
	configPath := flagPath
	if envPath := environment["CONFIG"]; envPath != "" {
		if configPath != "" && configPath != envPath {
			return fmt.Errorf("conflicting config paths: flag=%s env=%s", configPath, envPath)
		}
		configPath = envPath
	}

	// If no explicit config path, try default locations
	if configPath == "" {
		for _, loc := range getConfigLocations() {
			if _, err := osInterface.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if configPath == "" {
		return nil
	}

	data, err := osInterface.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	c.configPath = configPath

	// Parse based on file extension
	if strings.HasSuffix(strings.ToLower(configPath), ".env") {
		envMap, err := godotenv.UnmarshalBytes(data)
		if err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		if err := env.ParseWithOptions(c, env.Options{
			Environment: envMap,
		}); err != nil {
			return fmt.Errorf("error parsing .env file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error parsing yaml config: %w", err)
		}
		if err := c.parseUpperCaseKeys(data); err != nil {
			return err
		}
	}
	return nil
}

// parseUpperCaseKeys applies top-level YAML keys written in their
// environment variable form, such as LOG_FILE_DIRECTORY, so older config
// files keep working. Lists are joined the way STATIONS_TO_QUERY is split.
func (c *Config) parseUpperCaseKeys(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("error parsing yaml config: %w", err)
	}

	upper := make(map[string]string)
	for key, value := range raw {
		if key == "" || key != strings.ToUpper(key) || value == nil {
			continue
		}
		switch v := value.(type) {
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
			upper[key] = strings.Join(items, ",")
		case map[string]any:
			return fmt.Errorf("error parsing yaml config: key %s must not be a mapping", key)
		default:
			upper[key] = fmt.Sprint(v)
		}
	}
	if len(upper) == 0 {
		return nil
	}

	if err := env.ParseWithOptions(c, env.Options{
		Environment: upper,
	}); err != nil {
		return fmt.Errorf("error parsing yaml config: %w", err)
	}
	return nil
}

// loadDotEnv reads an explicit dotenv file. Its values are used where the
// process environment does not set the same variable.
func loadDotEnv(path string, osInterface OSInterface) (map[string]string, error) {
	environ := osInterface.Environ()
	if path == "" {
		return environ, nil
	}

	data, err := osInterface.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading dotenv file: %w", err)
	}
	dotenv, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, fmt.Errorf("error loading dotenv file: %w", err)
	}

	merged := make(map[string]string, len(environ)+len(dotenv))
	for k, v := range dotenv {
		merged[k] = v
	}
	for k, v := range environ {
		merged[k] = v
	}
	return merged, nil
}

func (c *Config) parseEnvVariables(environment map[string]string) error {
	if err := env.ParseWithOptions(c, env.Options{
		Environment: environment,
	}); err != nil {
		return fmt.Errorf("error parsing environment variables: %w", err)
	}
	return nil
}

func (c *Config) applyFlags(flags Flags) {
	if flags.LogDir != "" {
		c.LogFileDirectory = flags.LogDir
	}
	if flags.Debug {
		c.Debug = true
	}
	if c.Debug {
		c.LogLevel = "debug"
	}

	stations := make([]string, 0, len(c.StationsToQuery))
	for _, s := range c.StationsToQuery {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			stations = append(stations, s)
		}
	}
	c.StationsToQuery = stations
}

func Parse(flags Flags) (*Config, error) {
	return ParseWithOS(flags, defaultOS)
}

func ParseWithOS(flags Flags, osInterface OSInterface) (*Config, error) {
	var config Config

	// Initialize defaults
	config.initDefaults()

	environment, err := loadDotEnv(flags.DotEnv, osInterface)
	if err != nil {
		return nil, err
	}

	// Parse config file
	if err := config.parseConfigFile(flags.Config, environment, osInterface); err != nil {
		return nil, err
	}

	// Parse environment variables (highest priority)
	if err := config.parseEnvVariables(environment); err != nil {
		return nil, err
	}

	// Command line overrides
	config.applyFlags(flags)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ConfigFilePath returns the config file that was loaded, if any.
func (c *Config) ConfigFilePath() string {
	return c.configPath
}

func (c *Config) QueryInterval() time.Duration {
	return seconds(c.QueryFrequencySeconds)
}

func (c *Config) QueryPrecision() time.Duration {
	return seconds(c.QueryFrequencyPrecisionSeconds)
}

func (c *Config) RolloverInterval() time.Duration {
	return seconds(c.LogFileRolloverPeriodSeconds)
}

func (c *Config) RolloverPrecision() time.Duration {
	return seconds(c.LogFileRolloverPeriodPrecisionSeconds)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return seconds(c.ShutdownTimeoutSeconds)
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
