package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // DROUGHT_TIMEZONE must resolve in minimal containers

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Change publishing is disabled when no brokers are configured.
	KafkaBrokers      []string
	KafkaChangesTopic string

	NWSBaseURL        string
	NWSUserAgentName  string
	NWSUserAgentEmail string
	NWSCertainty      []string

	HTTPClientTimeout time.Duration
	HTTPMaxRetries    int
	ZoneCacheSize     int

	AlertPollInterval         time.Duration
	CompletionInterval        time.Duration
	CompletionGracePeriod     time.Duration
	ConfirmationInterval      time.Duration
	ConfirmationMaxConcurrent int

	WildfireArcGISURL string
	WildfireInterval  time.Duration
	WildfireStaleness time.Duration

	DroughtCurrentURL     string
	DroughtArchiveBaseURL string
	DroughtInterval       time.Duration
	DroughtSeverityLow    int
	DroughtSeverityHigh   int
	DroughtTimezone       *time.Location
}

// NWSUserAgent formats the User-Agent the NWS API asks clients to send.
func (c *Config) NWSUserAgent() string {
	return fmt.Sprintf("( %s, %s )", c.NWSUserAgentName, c.NWSUserAgentEmail)
}

const defaultWildfireURL = "https://services3.arcgis.com/T4QMspbfLg3qTGWY/arcgis/rest/services/WFIGS_Interagency_Perimeters_Current/FeatureServer/0/query"

const defaultDroughtCurrentURL = "https://droughtmonitor.unl.edu/data/json/usdm_current.json"

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RedisAddr:      sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        p.intValue("REDIS_DB", 0, 0),
		RedisKeyPrefix: sharedcfg.EnvOrDefault("REDIS_KEY_PREFIX", "storm"),

		KafkaChangesTopic: sharedcfg.EnvOrDefault("KAFKA_CHANGES_TOPIC", "disaster-event-changes"),

		NWSBaseURL:        strings.TrimRight(sharedcfg.EnvOrDefault("NWS_BASE_URL", "https://api.weather.gov"), "/"),
		NWSUserAgentName:  sharedcfg.EnvOrDefault("NWS_USER_AGENT_NAME", "storm-data-sync"),
		NWSUserAgentEmail: sharedcfg.EnvOrDefault("NWS_USER_AGENT_EMAIL", "ops@example.com"),
		NWSCertainty:      splitList(sharedcfg.EnvOrDefault("NWS_CERTAINTY", "Observed,Likely")),

		HTTPClientTimeout: p.duration("HTTP_CLIENT_TIMEOUT", 10*time.Second),
		HTTPMaxRetries:    p.intValue("HTTP_MAX_RETRIES", 3, 1),
		ZoneCacheSize:     p.intValue("ZONE_CACHE_SIZE", 2000, 1),

		AlertPollInterval:         p.duration("ALERT_POLL_INTERVAL", 3*time.Minute),
		CompletionInterval:        p.duration("COMPLETION_INTERVAL", 5*time.Minute),
		CompletionGracePeriod:     p.duration("COMPLETION_GRACE_PERIOD", 60*time.Minute),
		ConfirmationInterval:      p.duration("CONFIRMATION_INTERVAL", time.Hour),
		ConfirmationMaxConcurrent: p.intValue("CONFIRMATION_MAX_CONCURRENT", 4, 1),

		WildfireArcGISURL: sharedcfg.EnvOrDefault("WILDFIRE_ARCGIS_URL", defaultWildfireURL),
		WildfireInterval:  p.duration("WILDFIRE_INTERVAL", 24*time.Hour),
		WildfireStaleness: p.duration("WILDFIRE_STALENESS", 7*24*time.Hour),

		DroughtCurrentURL:     sharedcfg.EnvOrDefault("DROUGHT_CURRENT_URL", defaultDroughtCurrentURL),
		DroughtArchiveBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("DROUGHT_ARCHIVE_BASE_URL", "https://droughtmonitor.unl.edu"), "/"),
		DroughtInterval:       p.duration("DROUGHT_INTERVAL", 24*time.Hour),
		DroughtSeverityLow:    p.intValue("DROUGHT_SEVERITY_LOW", 2, 0),
		DroughtSeverityHigh:   p.intValue("DROUGHT_SEVERITY_HIGH", 4, 0),
	}
	if p.err != nil {
		return nil, p.err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	tz := sharedcfg.EnvOrDefault("DROUGHT_TIMEZONE", "America/New_York")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid DROUGHT_TIMEZONE: %w", err)
	}
	cfg.DroughtTimezone = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if c.NWSBaseURL == "" {
		return errors.New("NWS_BASE_URL is required")
	}
	if len(c.NWSCertainty) == 0 {
		return errors.New("NWS_CERTAINTY is required")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaChangesTopic == "" {
		return errors.New("KAFKA_CHANGES_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.DroughtSeverityLow > 4 || c.DroughtSeverityHigh > 4 || c.DroughtSeverityLow > c.DroughtSeverityHigh {
		return errors.New("invalid DROUGHT_SEVERITY_LOW/DROUGHT_SEVERITY_HIGH: want 0 <= low <= high <= 4")
	}
	return nil
}

// parser records the first invalid value so Load can report it once.
type parser struct {
	err error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.fail(fmt.Errorf("invalid %s: %q", key, s))
		return def
	}
	return d
}

func (p *parser) intValue(key string, def, minValue int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minValue {
		p.fail(fmt.Errorf("invalid %s: %q", key, s))
		return def
	}
	return n
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
