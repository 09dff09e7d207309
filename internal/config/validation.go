package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var (
	ErrMissingLDBToken     = errors.New("ldb_token is required")
	ErrMissingStations     = errors.New("stations_to_query must list at least one station")
	ErrInvalidStation      = errors.New("invalid station code")
	ErrMissingLogDirectory = errors.New("log_file_directory is required")
	ErrInvalidInterval     = errors.New("interval must be positive")
	ErrInvalidPrecision    = errors.New("precision must be positive and no larger than its interval")
	ErrInvalidNumRows      = errors.New("ldb_num_rows must be between 1 and 150")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidBucketURL    = errors.New("invalid export bucket url")
)

var crsPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateUpstream(); err != nil {
		return err
	}

	if err := c.validateStations(); err != nil {
		return err
	}

	if c.LogFileDirectory == "" {
		return ErrMissingLogDirectory
	}

	if err := validateSchedule("query_frequency", c.QueryFrequencySeconds, c.QueryFrequencyPrecisionSeconds); err != nil {
		return err
	}

	if err := validateSchedule("log_file_rollover_period", c.LogFileRolloverPeriodSeconds, c.LogFileRolloverPeriodPrecisionSeconds); err != nil {
		return err
	}

	if c.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("shutdown_timeout_seconds: %w", ErrInvalidInterval)
	}

	if err := c.validateLogLevel(); err != nil {
		return err
	}

	return c.validateExport()
}

func (c *Config) validateUpstream() error {
	if c.LDBToken == "" {
		return ErrMissingLDBToken
	}
	if c.LDBNumRows < 1 || c.LDBNumRows > 150 {
		return ErrInvalidNumRows
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("http_timeout_seconds: %w", ErrInvalidInterval)
	}
	if c.LDBEndpoint != "" {
		if _, err := url.ParseRequestURI(c.LDBEndpoint); err != nil {
			return fmt.Errorf("ldb_endpoint: %w", err)
		}
	}
	return nil
}

func (c *Config) validateStations() error {
	if len(c.StationsToQuery) == 0 {
		return ErrMissingStations
	}
	for _, crs := range c.StationsToQuery {
		if !crsPattern.MatchString(crs) {
			return fmt.Errorf("%w: %q", ErrInvalidStation, crs)
		}
	}
	return nil
}

func (c *Config) validateLogLevel() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
}

func (c *Config) validateExport() error {
	if !c.Export.Enabled() {
		return nil
	}
	u, err := url.Parse(c.Export.BucketURL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBucketURL, c.Export.BucketURL)
	}
	// zero keeps the exporter's default
	if c.Export.UploadTimeoutSeconds < 0 {
		return fmt.Errorf("export.upload_timeout_seconds: %w", ErrInvalidInterval)
	}
	return validateSchedule("export.interval", c.Export.IntervalSeconds, c.Export.PrecisionSeconds)
}

// validateSchedule checks an interval and its precision. A zero precision
// is allowed and falls back to a tenth of the interval at runtime.
func validateSchedule(name string, interval, precision float64) error {
	if interval <= 0 {
		return fmt.Errorf("%s: %w", name, ErrInvalidInterval)
	}
	if precision < 0 || precision > interval {
		return fmt.Errorf("%s: %w", name, ErrInvalidPrecision)
	}
	return nil
}
