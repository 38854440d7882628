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
	return &Config{
		RedisAddr:          "localhost:6379",
		DryRun:             true,
		EventTTL:           30 * 24 * time.Hour,
		IdempotencyTTL:     90 * 24 * time.Hour,
		MaxRetries:         3,
		CRMDatacenter:      "us",
		MinDurationMinutes: 10,
		DemoDatePolicy:     DemoDatePreserve,
		Queue:              DefaultQueueConfig(),
	}
}

func TestValidateAcceptsDryRunWithoutCRMCredentials(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRequiresCRMCredentialsOutsideDryRun(t *testing.T) {
	cfg := validConfig()
	cfg.DryRun = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRM credentials")
}

func TestValidateAggregatesAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.CRMDatacenter = "mars"
	cfg.MaxRetries = -1
	cfg.EventTTL = 0
	cfg.Queue.WorkerCount = 0
	cfg.DemoDatePolicy = "sometimes"

	err := cfg.Validate()
	require.Error(t, err)
	// Every problem surfaces in one pass.
	assert.Contains(t, err.Error(), "CRM_DATACENTER")
	assert.Contains(t, err.Error(), "MAX_RETRIES")
	assert.Contains(t, err.Error(), "EVENT_TTL_SECONDS")
	assert.Contains(t, err.Error(), "WORKER_COUNT")
	assert.Contains(t, err.Error(), "DEMO_DATE_POLICY")
}

func TestParseRetryIntervals(t *testing.T) {
	intervals, err := parseRetryIntervals("60s, 120s,240s")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}, intervals)

	_, err = parseRetryIntervals("60s,soon")
	assert.Error(t, err)
}

func TestIsCustomerDomain(t *testing.T) {
	cfg := &Config{CustomerDomains: []string{"ours.example", "Sub.Ours.Example"}}

	assert.True(t, cfg.IsCustomerDomain("ours.example"))
	assert.True(t, cfg.IsCustomerDomain("OURS.EXAMPLE"))
	assert.True(t, cfg.IsCustomerDomain("sub.ours.example"))
	assert.False(t, cfg.IsCustomerDomain("acme.example"))
}

func TestIsQualifyingTag(t *testing.T) {
	cfg := &Config{QualifyingTags: []string{"Lead", "Qualified"}}

	assert.True(t, cfg.IsQualifyingTag("lead"))
	assert.True(t, cfg.IsQualifyingTag("QUALIFIED"))
	assert.False(t, cfg.IsQualifyingTag("vip"))
}

func TestLoadTablesDefaultsWithoutOverlay(t *testing.T) {
	tables, err := LoadTables("")
	require.NoError(t, err)

	limit := tables.PlanLimitFor("PRO - Yearly")
	assert.Equal(t, 25, limit.Members)
	assert.Equal(t, 250, limit.Projects)

	assert.Zero(t, tables.PlanLimitFor("no such plan"))
}

func TestLoadTablesOverlayMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadflow.yaml")
	overlay := `
plan_limits:
  "PRO - Yearly":
    members: 50
    projects: 500
  "Enterprise":
    members: 1000
    projects: 10000
`
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0o600))

	tables, err := LoadTables(path)
	require.NoError(t, err)

	// Overridden plan takes the overlay values.
	assert.Equal(t, PlanLimit{Members: 50, Projects: 500}, tables.PlanLimitFor("PRO - Yearly"))
	// New plan added, untouched builtin preserved.
	assert.Equal(t, PlanLimit{Members: 1000, Projects: 10000}, tables.PlanLimitFor("Enterprise"))
	assert.Equal(t, PlanLimit{Members: 10, Projects: 1000}, tables.PlanLimitFor("Team Yearly"))
}

func TestLoadTablesRejectsMalformedOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plan_limits: ["), 0o600))

	_, err := LoadTables(path)
	assert.Error(t, err)
}
