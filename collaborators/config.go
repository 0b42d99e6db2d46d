// Package collaborators defines the configuration model the detector is
// built from, plus the two interfaces a full deployment plugs in around
// it - result Storage and an AI-backed Recommender - without this module
// depending on any particular storage backend or AI provider. The config
// loading idiom (JSON file, then environment-variable overlay, then
// defaulting, then mandatory-field validation) is grounded on the teacher
// client's ClientConfig loader.
package collaborators

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/suenot/rate-limit-optimizer/faulttolerance"
	"github.com/suenot/rate-limit-optimizer/logger"
	"github.com/suenot/rate-limit-optimizer/rotator"
)

// AuthType names how the client authenticates against the target site.
type AuthType string

const (
	AuthNone        AuthType = "none"
	AuthAPIKey      AuthType = "api_key"
	AuthBearerToken AuthType = "bearer_token"
	AuthBasic       AuthType = "basic_auth"
)

// AuthConfig configures the auth header httpclient injects into every
// probe request.
type AuthConfig struct {
	Type         AuthType `json:"type"`
	APIKeyHeader string   `json:"api_key_header"`
	APIKeyValue  string   `json:"api_key_value"`
	Token        string   `json:"token"`
	Username     string   `json:"username"`
	Password     string   `json:"password"`
}

// TargetSite names the API under test: its base URL, the endpoints to
// rotate across, and how to authenticate against it.
type TargetSite struct {
	Name      string     `json:"name"`
	BaseURL   string     `json:"base_url"`
	Endpoints []string   `json:"endpoints"`
	Auth      AuthConfig `json:"auth"`
}

// BatchSettings controls how many requests a ramp-test iteration sends per
// window and how long it pauses between batches.
type BatchSettings struct {
	BatchSize           int           `json:"batch_size"`
	DelayBetweenBatches time.Duration `json:"delay_between_batches"`
}

// SafetySettings bounds how aggressively the detector is willing to probe.
type SafetySettings struct {
	SafetyMarginPercent float64 `json:"safety_margin_percent"`
	MaxConcurrentTiers  int     `json:"max_concurrent_tiers"`
}

// RotationSettings configures the endpoint rotator.
type RotationSettings struct {
	Policy                   rotator.Policy `json:"policy"`
	RotationIntervalRequests int            `json:"rotation_interval_requests"`
}

// DetectionSettings controls the multi-tier detector's own behavior,
// independent of any one tier's probe parameters.
type DetectionSettings struct {
	StopOnFirstLimit bool `json:"stop_on_first_limit"`
	ParallelTiers    bool `json:"parallel_tiers"`
}

// LoggingConfig configures the module-wide logger.
type LoggingConfig struct {
	Level            logger.LogLevel `json:"level"`
	OutputFormat     string          `json:"output_format"`
	ConsoleSeparator string          `json:"console_separator"`
}

// NetworkConfig bounds the underlying HTTP transport.
type NetworkConfig struct {
	Timeout               time.Duration `json:"timeout"`
	MaxIdleConns          int           `json:"max_idle_conns"`
	MaxConcurrentRequests int           `json:"max_concurrent_requests"`
}

// APIContext describes the API being probed, for attaching business
// context to a stored result (criticality, expected load) that the
// detector itself never reasons about but a downstream recommender might.
type APIContext struct {
	APIName             string `json:"api_name"`
	BaseURL             string `json:"base_url"`
	APIType             string `json:"api_type"`
	AuthenticationType  string `json:"authentication_type"`
	PrimaryUseCase      string `json:"primary_use_case"`
	BusinessCriticality string `json:"business_criticality"`
	ExpectedLoad        string `json:"expected_load"`
}

// Config is the complete, validated configuration a detector run is built
// from.
type Config struct {
	Target    TargetSite                 `json:"target"`
	Batch     BatchSettings              `json:"batch"`
	Safety    SafetySettings             `json:"safety"`
	Rotation  RotationSettings           `json:"rotation"`
	Detection DetectionSettings          `json:"detection"`
	Retry     faulttolerance.RetryPolicy `json:"-"`
	Logging   LoggingConfig              `json:"logging"`
	Network   NetworkConfig              `json:"network"`
	Context   APIContext                 `json:"context"`
}

const (
	DefaultBatchSize                = 10
	DefaultDelayBetweenBatches      = 500 * time.Millisecond
	DefaultSafetyMarginPercent      = 10.0
	DefaultMaxConcurrentTiers       = 3
	DefaultRotationIntervalRequests = 1
	DefaultNetworkTimeout           = 10 * time.Second
	DefaultMaxConcurrentRequests    = 5
)

// LoadConfigFromFile reads a JSON configuration file into a Config, applies
// defaults for anything unset, and validates mandatory fields. It uses the
// standard log package rather than logger.Logger because the zap logger
// isn't built until Config.Logging has been loaded.
func LoadConfigFromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		log.Printf("failed to open configuration file %s: %v", filePath, err)
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var builder strings.Builder
	for {
		part, _, err := reader.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("failed to read configuration file %s: %v", filePath, err)
			return nil, err
		}
		builder.Write(part)
	}

	config := &Config{}
	if err := json.Unmarshal([]byte(builder.String()), config); err != nil {
		log.Printf("failed to unmarshal configuration file %s: %v", filePath, err)
		return nil, err
	}

	setDefaults(config)
	if err := validateMandatory(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadConfigFromEnv overlays environment variables onto config (or a fresh
// Config if nil), then defaults and validates.
func LoadConfigFromEnv(config *Config) (*Config, error) {
	if config == nil {
		config = &Config{}
	}

	config.Target.BaseURL = getEnvOrDefault("TARGET_BASE_URL", config.Target.BaseURL)
	config.Target.Name = getEnvOrDefault("TARGET_NAME", config.Target.Name)
	config.Target.Auth.Token = getEnvOrDefault("TARGET_AUTH_TOKEN", config.Target.Auth.Token)
	config.Target.Auth.APIKeyValue = getEnvOrDefault("TARGET_API_KEY", config.Target.Auth.APIKeyValue)

	config.Batch.BatchSize = parseIntOrDefault(getEnvOrDefault("BATCH_SIZE", strconv.Itoa(config.Batch.BatchSize)), DefaultBatchSize)
	config.Safety.SafetyMarginPercent = parseFloatOrDefault(getEnvOrDefault("SAFETY_MARGIN_PERCENT", fmt.Sprintf("%g", config.Safety.SafetyMarginPercent)), DefaultSafetyMarginPercent)
	config.Safety.MaxConcurrentTiers = parseIntOrDefault(getEnvOrDefault("MAX_CONCURRENT_TIERS", strconv.Itoa(config.Safety.MaxConcurrentTiers)), DefaultMaxConcurrentTiers)

	config.Logging.Level = logger.LogLevel(getEnvOrDefault("LOG_LEVEL", string(config.Logging.Level)))
	config.Logging.OutputFormat = getEnvOrDefault("LOG_OUTPUT_FORMAT", config.Logging.OutputFormat)

	config.Network.Timeout = parseDurationOrDefault(getEnvOrDefault("NETWORK_TIMEOUT", config.Network.Timeout.String()), DefaultNetworkTimeout)

	setDefaults(config)
	if err := validateMandatory(config); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(config *Config) {
	if config.Batch.BatchSize <= 0 {
		config.Batch.BatchSize = DefaultBatchSize
	}
	if config.Batch.DelayBetweenBatches <= 0 {
		config.Batch.DelayBetweenBatches = DefaultDelayBetweenBatches
	}
	if config.Safety.SafetyMarginPercent <= 0 {
		config.Safety.SafetyMarginPercent = DefaultSafetyMarginPercent
	}
	if config.Safety.MaxConcurrentTiers <= 0 {
		config.Safety.MaxConcurrentTiers = DefaultMaxConcurrentTiers
	}
	if config.Rotation.Policy == "" {
		config.Rotation.Policy = rotator.PolicyRandom
	}
	if config.Rotation.RotationIntervalRequests <= 0 {
		config.Rotation.RotationIntervalRequests = DefaultRotationIntervalRequests
	}
	if config.Network.Timeout <= 0 {
		config.Network.Timeout = DefaultNetworkTimeout
	}
	if config.Network.MaxConcurrentRequests <= 0 {
		config.Network.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if config.Logging.Level == "" {
		config.Logging.Level = logger.LogLevelInfo
	}
	if config.Logging.OutputFormat == "" {
		config.Logging.OutputFormat = logger.LogOutputHumanReadable
	}
	if config.Logging.ConsoleSeparator == "" {
		config.Logging.ConsoleSeparator = ","
	}
	if config.Retry.MaxRetries == 0 && config.Retry.BaseDelay == 0 {
		config.Retry = faulttolerance.DefaultRetryPolicy()
	}
}

func validateMandatory(config *Config) error {
	var missing []string
	if config.Target.BaseURL == "" {
		missing = append(missing, "Target.BaseURL")
	}
	if config.Target.Name == "" {
		missing = append(missing, "Target.Name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("mandatory configuration missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnvOrDefault(envKey, defaultValue string) string {
	if v, ok := os.LookupEnv(envKey); ok {
		return v
	}
	return defaultValue
}

func parseIntOrDefault(value string, defaultVal int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseFloatOrDefault(value string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func parseDurationOrDefault(value string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultVal
	}
	return d
}
