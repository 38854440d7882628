package signals

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcrew/leadflow/pkg/config"
)

var testTables = &config.Tables{
	PlanLimits: map[string]config.PlanLimit{
		"PRO - Yearly": {Members: 25, Projects: 250},
		"Team Yearly":  {Members: 10, Projects: 1000},
	},
}

func fixedDetector() *Detector {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return NewDetectorAt(testTables, func() time.Time { return now })
}

func signalTypes(sigs []Signal) []string {
	types := make([]string, len(sigs))
	for i, s := range sigs {
		types[i] = s.Type
	}
	return types
}

func findSignal(t *testing.T, sigs []Signal, typ string) Signal {
	t.Helper()
	for _, s := range sigs {
		if s.Type == typ {
			return s
		}
	}
	t.Fatalf("signal %q not found in %v", typ, signalTypes(sigs))
	return Signal{}
}

func TestTeamAtCapacityIsCritical(t *testing.T) {
	sigs := fixedDetector().Detect(Metrics{
		TeamSize: 25,
		PlanName: "PRO - Yearly",
	})
	sig := findSignal(t, sigs, "team_at_capacity")
	assert.Equal(t, PriorityCritical, sig.Priority)
	assert.True(t, sig.HotLead)
	assert.Equal(t, 2, sig.UrgencyDays)
}

func TestTeamApproachingCapacityAtEightyPercent(t *testing.T) {
	sigs := fixedDetector().Detect(Metrics{
		TeamSize: 20,
		PlanName: "PRO - Yearly",
	})
	sig := findSignal(t, sigs, "team_approaching_capacity")
	assert.Equal(t, PriorityHigh, sig.Priority)
	assert.Contains(t, sig.Details, "20/25")
}

func TestNoCapacitySignalBelowThreshold(t *testing.T) {
	sigs := fixedDetector().Detect(Metrics{
		TeamSize: 16,
		PlanName: "PRO - Yearly",
	})
	assert.NotContains(t, signalTypes(sigs), "team_at_capacity")
	assert.NotContains(t, signalTypes(sigs), "team_approaching_capacity")
}

func TestPowerUserWithoutProjectLimitSignal(t *testing.T) {
	sigs := fixedDetector().Detect(Metrics{
		ActiveProjects:  110,
		ProjectsAllowed: 1000,
		PlanName:        "Team Yearly",
	})
	assert.Contains(t, signalTypes(sigs), "power_user_projects")
	assert.NotContains(t, signalTypes(sigs), "project_limit_approaching")
}

func TestProjectLimitApproachingEscalatesAtNinetyPercent(t *testing.T) {
	d := fixedDetector()

	sig := findSignal(t, d.Detect(Metrics{ActiveProjects: 210, ProjectsAllowed: 250}), "project_limit_approaching")
	assert.Equal(t, PriorityMedium, sig.Priority)
	assert.Equal(t, 14, sig.UrgencyDays)

	sig = findSignal(t, d.Detect(Metrics{ActiveProjects: 230, ProjectsAllowed: 250}), "project_limit_approaching")
	assert.Equal(t, PriorityHigh, sig.Priority)
	assert.Equal(t, 7, sig.UrgencyDays)
}

func TestSubscriptionExpiring(t *testing.T) {
	d := fixedDetector()
	now := d.now()

	sig := findSignal(t, d.Detect(Metrics{
		SubscriptionExpUnix: now.Add(60 * 24 * time.Hour).Unix(),
	}), "subscription_expiring")
	assert.Equal(t, PriorityMedium, sig.Priority)

	sig = findSignal(t, d.Detect(Metrics{
		SubscriptionExpUnix: now.Add(20 * 24 * time.Hour).Unix(),
	}), "subscription_expiring")
	assert.Equal(t, PriorityHigh, sig.Priority)

	sigs := d.Detect(Metrics{SubscriptionExpUnix: now.Add(200 * 24 * time.Hour).Unix()})
	assert.NotContains(t, signalTypes(sigs), "subscription_expiring")
}

func TestSubscriptionChurned(t *testing.T) {
	for _, status := range []string{"canceled", "cancelled", "expired", "unpaid"} {
		sig := findSignal(t, fixedDetector().Detect(Metrics{SubscriptionStatus: status}), "subscription_churned")
		assert.Equal(t, PriorityCritical, sig.Priority)
		assert.True(t, sig.ChurnPrevention)
	}
}

func TestLowFeatureAdoptionSkipsTask(t *testing.T) {
	sig := findSignal(t, fixedDetector().Detect(Metrics{
		ActiveProjects: 12,
		ChecklistsUsed: 0,
	}), "low_feature_adoption")
	assert.Equal(t, PriorityLow, sig.Priority)
	assert.False(t, sig.CreateTask)
}

func TestTrialEngagedUserShortCircuitsPaidSignals(t *testing.T) {
	sigs := fixedDetector().Detect(Metrics{
		TeamSize:           25,
		ActiveProjects:     110,
		PlanName:           "PRO - Yearly",
		SubscriptionStatus: "trialing",
	})
	sig := findSignal(t, sigs, "trial_engaged_user")
	assert.Equal(t, PriorityHigh, sig.Priority)
	assert.True(t, sig.HotLead)
	// Trial companies never produce paid-tier signals.
	assert.NotContains(t, signalTypes(sigs), "team_at_capacity")
	assert.NotContains(t, signalTypes(sigs), "power_user_projects")
}

func TestTrialSignalLadder(t *testing.T) {
	d := fixedDetector()

	sigs := d.Detect(Metrics{ActiveProjects: 2, SubscriptionStatus: "trial"})
	assert.Contains(t, signalTypes(sigs), "trial_active_user")

	sigs = d.Detect(Metrics{TeamSize: 3, SubscriptionStatus: "trial"})
	assert.Contains(t, signalTypes(sigs), "trial_team_collaboration")
}

func TestTrialEndingSoon(t *testing.T) {
	d := fixedDetector()
	exp := d.now().Add(36 * time.Hour).Unix()

	sig := findSignal(t, d.Detect(Metrics{
		ActiveProjects:      1,
		SubscriptionStatus:  "trial",
		SubscriptionExpUnix: exp,
	}), "trial_ending_engaged")
	assert.True(t, sig.HotLead)

	sig = findSignal(t, d.Detect(Metrics{
		SubscriptionStatus:  "trial",
		SubscriptionExpUnix: exp,
	}), "trial_ending_inactive")
	assert.Equal(t, PriorityMedium, sig.Priority)
}

func TestFormatTask(t *testing.T) {
	today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sig := Signal{
		Type:          "team_at_capacity",
		Priority:      PriorityCritical,
		Details:       "25/25 members - AT LIMIT, cannot add more",
		Action:        "URGENT: offer Enterprise",
		UrgencyDays:   2,
		TalkingPoints: []string{"Are you blocked from adding teammates?"},
	}

	task := FormatTask(sig, "Acme", "cmp-42", "alice@acme.example", today)
	assert.Equal(t, "🔥 Team At Capacity: Acme", task.Subject)
	assert.Equal(t, "2026-03-12", task.DueDate)
	assert.Equal(t, "High", task.Priority)
	assert.Contains(t, task.Description, "Company: Acme")
	assert.Contains(t, task.Description, "Contact: alice@acme.example")
	assert.Contains(t, task.Description, "TALKING POINTS:")
}

func TestFormatTaskSubjectBounded(t *testing.T) {
	sig := Signal{Type: "power_user_projects", Priority: PriorityHigh, UrgencyDays: 14}
	task := FormatTask(sig, strings.Repeat("Very Long Company Name ", 30), "id", "", time.Now())
	require.LessOrEqual(t, len([]rune(task.Subject)), 255)
}

func TestFormatTaskPriorityMapping(t *testing.T) {
	today := time.Now()
	cases := map[string]string{
		PriorityCritical: "High",
		PriorityHigh:     "High",
		PriorityMedium:   "Normal",
		PriorityLow:      "Low",
	}
	for in, want := range cases {
		task := FormatTask(Signal{Type: "x", Priority: in, UrgencyDays: 1}, "C", "id", "", today)
		assert.Equal(t, want, task.Priority)
	}
}
