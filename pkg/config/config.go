// Package config loads and validates the process configuration.
//
// The core configuration is environment-driven: Load reads the process
// environment (main loads a .env file first), applies defaults, and the
// caller exits with code 1 when Validate fails. Operator-editable tables
// (plan limits, signal thresholds) live in an optional YAML overlay merged
// over built-in defaults; see overlay.go.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DemoDatePolicy controls whether the transcript handler overwrites a demo
// datetime already present on the lead.
type DemoDatePolicy string

// Demo date policies.
const (
	DemoDatePreserve  DemoDatePolicy = "preserve_existing"
	DemoDateOverwrite DemoDatePolicy = "overwrite"
)

// Config is the immutable process configuration, threaded explicitly into
// the HTTP server and the worker pool at startup.
type Config struct {
	HTTPPort string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DryRun              bool
	EventTTL            time.Duration
	IdempotencyTTL      time.Duration
	MaxRetries          int
	RetryIntervals      []time.Duration
	AllowDebugEndpoints bool

	CalendarWebhookSecret string
	MeetingWebhookSecret  string
	SupportWebhookSecret  string
	EnrichAPIKey          string

	CRMDatacenter   string
	CRMClientID     string
	CRMClientSecret string
	CRMRefreshToken string

	CustomerDomains    []string
	MinDurationMinutes int
	QualifyingTags     []string

	OpenAIAPIKey     string
	OpenAIModel      string
	LLMMaxInputChars int

	SlackWebhookURL string

	ApolloAPIKey     string
	BrandfetchAPIKey string

	StatusDemoBooked       string
	StatusDemoComplete     string
	StatusDemoCanceled     string
	StatusSupportQualified string
	CreateFollowupTask     bool
	AutoEnrichCalendar     bool
	AutoEnrichSupport      bool
	DemoDatePolicy         DemoDatePolicy

	Queue *QueueConfig

	OutboundTimeout time.Duration

	// Tables carries the operator-editable signal/plan configuration,
	// merged from built-in defaults and the optional YAML overlay.
	Tables *Tables
}

// crmDatacenters enumerates the recognized CRM datacenter codes.
var crmDatacenters = map[string]bool{"us": true, "eu": true, "in": true, "au": true}

// Load builds the configuration from the environment and the optional
// YAML overlay named by LEADFLOW_CONFIG.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		DryRun:                 getEnvBool("DRY_RUN", false),
		EventTTL:               time.Duration(getEnvInt("EVENT_TTL_SECONDS", 30*24*3600)) * time.Second,
		IdempotencyTTL:         time.Duration(getEnvInt("IDEMPOTENCY_TTL_SECONDS", 90*24*3600)) * time.Second,
		MaxRetries:             getEnvInt("MAX_RETRIES", 3),
		AllowDebugEndpoints:    getEnvBool("ALLOW_DEBUG_ENDPOINTS", false),
		CalendarWebhookSecret:  os.Getenv("CALENDAR_WEBHOOK_SECRET"),
		MeetingWebhookSecret:   os.Getenv("MEETING_WEBHOOK_SECRET"),
		SupportWebhookSecret:   os.Getenv("SUPPORT_WEBHOOK_SECRET"),
		EnrichAPIKey:           os.Getenv("ENRICH_API_KEY"),
		CRMDatacenter:          strings.ToLower(getEnv("CRM_DATACENTER", "us")),
		CRMClientID:            os.Getenv("CRM_CLIENT_ID"),
		CRMClientSecret:        os.Getenv("CRM_CLIENT_SECRET"),
		CRMRefreshToken:        os.Getenv("CRM_REFRESH_TOKEN"),
		CustomerDomains:        splitCSV(os.Getenv("CUSTOMER_DOMAINS")),
		MinDurationMinutes:     getEnvInt("MIN_DURATION_MINUTES", 10),
		QualifyingTags:         splitCSV(getEnv("QUALIFYING_TAGS", "Lead")),
		OpenAIAPIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:            getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMMaxInputChars:       getEnvInt("LLM_MAX_INPUT_CHARS", 48000),
		SlackWebhookURL:        os.Getenv("SLACK_WEBHOOK_URL"),
		ApolloAPIKey:           os.Getenv("APOLLO_API_KEY"),
		BrandfetchAPIKey:       os.Getenv("BRANDFETCH_API_KEY"),
		StatusDemoBooked:       getEnv("STATUS_DEMO_BOOKED", "Demo Booked"),
		StatusDemoComplete:     getEnv("STATUS_DEMO_COMPLETE", "Demo Complete"),
		StatusDemoCanceled:     getEnv("STATUS_DEMO_CANCELED", "Demo Canceled"),
		StatusSupportQualified: getEnv("STATUS_SUPPORT_QUALIFIED", "Support Qualified"),
		CreateFollowupTask:     getEnvBool("CREATE_FOLLOWUP_TASK", false),
		AutoEnrichCalendar:     getEnvBool("AUTO_ENRICH_CALENDAR", true),
		AutoEnrichSupport:      getEnvBool("AUTO_ENRICH_SUPPORT", true),
		DemoDatePolicy:         DemoDatePolicy(getEnv("DEMO_DATE_POLICY", string(DemoDatePreserve))),
		Queue:                  loadQueueConfig(),
		OutboundTimeout:        getEnvDuration("OUTBOUND_TIMEOUT", 30*time.Second),
	}

	intervals, err := parseRetryIntervals(getEnv("RETRY_INTERVALS", "60s,120s,240s"))
	if err != nil {
		return nil, fmt.Errorf("RETRY_INTERVALS: %w", err)
	}
	cfg.RetryIntervals = intervals

	tables, err := LoadTables(os.Getenv("LEADFLOW_CONFIG"))
	if err != nil {
		return nil, err
	}
	cfg.Tables = tables

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.warnMissingSecrets()
	return cfg, nil
}

// Validate checks the enumerated fields. All violations are aggregated so a
// broken deployment surfaces every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if !crmDatacenters[c.CRMDatacenter] {
		errs = append(errs, fmt.Errorf("CRM_DATACENTER %q is not one of us/eu/in/au", c.CRMDatacenter))
	}
	if !c.DryRun {
		if c.CRMClientID == "" || c.CRMClientSecret == "" || c.CRMRefreshToken == "" {
			errs = append(errs, errors.New("CRM credentials (CRM_CLIENT_ID/CRM_CLIENT_SECRET/CRM_REFRESH_TOKEN) are required unless DRY_RUN=true"))
		}
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("MAX_RETRIES must be non-negative"))
	}
	if c.EventTTL <= 0 {
		errs = append(errs, errors.New("EVENT_TTL_SECONDS must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL_SECONDS must be positive"))
	}
	if c.MinDurationMinutes < 0 {
		errs = append(errs, errors.New("MIN_DURATION_MINUTES must be non-negative"))
	}
	if c.Queue.WorkerCount <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}
	switch c.DemoDatePolicy {
	case DemoDatePreserve, DemoDateOverwrite:
	default:
		errs = append(errs, fmt.Errorf("DEMO_DATE_POLICY %q is not one of preserve_existing/overwrite", c.DemoDatePolicy))
	}

	return errors.Join(errs...)
}

// warnMissingSecrets logs the endpoints that will accept unsigned requests.
// An unset secret selects the pass-through verifier, which is legitimate in
// development but must be visible in the startup log.
func (c *Config) warnMissingSecrets() {
	for name, secret := range map[string]string{
		"CALENDAR_WEBHOOK_SECRET": c.CalendarWebhookSecret,
		"MEETING_WEBHOOK_SECRET":  c.MeetingWebhookSecret,
		"SUPPORT_WEBHOOK_SECRET":  c.SupportWebhookSecret,
		"ENRICH_API_KEY":          c.EnrichAPIKey,
	} {
		if secret == "" {
			slog.Warn("Webhook secret not configured, endpoint will accept unsigned requests", "secret", name)
		}
	}
}

// IsCustomerDomain reports whether the email domain belongs to us rather
// than to a prospect.
func (c *Config) IsCustomerDomain(domain string) bool {
	domain = strings.ToLower(domain)
	for _, d := range c.CustomerDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// IsQualifyingTag reports whether a support tag should trigger lead creation.
func (c *Config) IsQualifyingTag(tag string) bool {
	for _, t := range c.QualifyingTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func parseRetryIntervals(raw string) ([]time.Duration, error) {
	parts := splitCSV(raw)
	intervals := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("bad interval %q: %w", p, err)
		}
		intervals = append(intervals, d)
	}
	return intervals, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value", "key", key, "value", v)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Ignoring non-boolean environment value", "key", key, "value", v)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Ignoring non-duration environment value", "key", key, "value", v)
		return defaultValue
	}
	return d
}
