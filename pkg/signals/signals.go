// Package signals is the pure expansion-signal detector. It evaluates a
// company's usage metrics against the plan-limit table and emits signals a
// sales team can act on, plus the CRM task each signal turns into.
package signals

import (
	"fmt"
	"strings"
	"time"

	"github.com/revcrew/leadflow/pkg/config"
)

// Priority levels in descending order of urgency.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Metrics are the usage numbers extracted from a company-updated payload.
type Metrics struct {
	TeamSize            int
	ActiveProjects      int
	ProjectsAllowed     int
	PlanName            string
	SubscriptionStatus  string
	SubscriptionExpUnix int64
	ChecklistsUsed      int
}

// Signal is one detected expansion or churn indicator.
type Signal struct {
	Type            string
	Priority        string
	Details         string
	Action          string
	UrgencyDays     int
	CreateTask      bool
	HotLead         bool
	ChurnPrevention bool
	TalkingPoints   []string
}

// Detector evaluates metrics against the plan-limit table.
type Detector struct {
	tables *config.Tables
	now    func() time.Time
}

// NewDetector builds a detector over the given tables.
func NewDetector(tables *config.Tables) *Detector {
	return &Detector{tables: tables, now: time.Now}
}

// NewDetectorAt builds a detector with a fixed clock. Used by tests.
func NewDetectorAt(tables *config.Tables, now func() time.Time) *Detector {
	return &Detector{tables: tables, now: now}
}

// Detect returns the signals triggered by m. Trialing companies get the
// trial-lifecycle signals only; everyone else gets the capacity, usage, and
// subscription signals.
func (d *Detector) Detect(m Metrics) []Signal {
	if isTrial(m.SubscriptionStatus) {
		return d.detectTrial(m)
	}
	return d.detectPaid(m)
}

func isTrial(status string) bool {
	switch strings.ToLower(status) {
	case "trial", "trialing":
		return true
	}
	return false
}

func (d *Detector) daysUntil(expUnix int64) (float64, bool) {
	if expUnix == 0 {
		return 0, false
	}
	return time.Unix(expUnix, 0).Sub(d.now()).Hours() / 24, true
}

func (d *Detector) detectTrial(m Metrics) []Signal {
	var out []Signal

	switch {
	case m.ActiveProjects >= 2 && m.TeamSize >= 2:
		out = append(out, Signal{
			Type:        "trial_engaged_user",
			Priority:    PriorityHigh,
			Details:     fmt.Sprintf("Trial user created %d/3 projects AND added %d team members - strong engagement", m.ActiveProjects, m.TeamSize),
			Action:      "Hot lead: proactive conversion outreach, offer discount or extended trial",
			UrgencyDays: 2,
			CreateTask:  true,
			HotLead:     true,
			TalkingPoints: []string{
				fmt.Sprintf("I see you've created %d projects and added team members.", m.ActiveProjects),
				"You're clearly getting value from the product.",
				"Let's get you set up on a plan, I can offer you a special rate.",
			},
		})
	case m.ActiveProjects >= 2:
		out = append(out, Signal{
			Type:        "trial_active_user",
			Priority:    PriorityMedium,
			Details:     fmt.Sprintf("Trial user created %d/3 projects (67%% of trial limit)", m.ActiveProjects),
			Action:      "Check in: how is their experience? Offer help, guide to paid conversion",
			UrgencyDays: 3,
			CreateTask:  true,
			TalkingPoints: []string{
				fmt.Sprintf("I noticed you've created %d projects.", m.ActiveProjects),
				"How's your experience so far?",
				"You're close to the 3-project trial limit, let's chat about plans.",
			},
		})
	case m.TeamSize >= 2:
		out = append(out, Signal{
			Type:        "trial_team_collaboration",
			Priority:    PriorityMedium,
			Details:     fmt.Sprintf("Trial user added %d team members - collaboration interest", m.TeamSize),
			Action:      "Show team collaboration features, offer team plan discount",
			UrgencyDays: 3,
			CreateTask:  true,
			TalkingPoints: []string{
				"I see you've added team members to collaborate.",
				"Team collaboration is where the product really shines.",
				"Let me show you what a team plan offers.",
			},
		})
	}

	if days, ok := d.daysUntil(m.SubscriptionExpUnix); ok && days > 0 && days <= 2 {
		if m.ActiveProjects >= 1 || m.TeamSize >= 2 {
			out = append(out, Signal{
				Type:        "trial_ending_engaged",
				Priority:    PriorityHigh,
				Details:     fmt.Sprintf("Trial ends in %d days, user has %d projects", int(days), m.ActiveProjects),
				Action:      "URGENT: last-chance conversion offer before trial expires",
				UrgencyDays: 1,
				CreateTask:  true,
				HotLead:     true,
				TalkingPoints: []string{
					fmt.Sprintf("Your trial ends in %d days.", int(days)),
					"Don't lose access to your projects.",
					"Let me set up a plan for you right now, it takes 2 minutes.",
				},
			})
		} else {
			out = append(out, Signal{
				Type:        "trial_ending_inactive",
				Priority:    PriorityMedium,
				Details:     fmt.Sprintf("Trial ends in %d days, minimal engagement (%d projects)", int(days), m.ActiveProjects),
				Action:      "Last-chance: offer help, demo, or extended trial to re-engage",
				UrgencyDays: 1,
				CreateTask:  true,
				TalkingPoints: []string{
					"Your trial is ending soon.",
					"Need help getting started? I can walk you through it.",
					"Or we can extend your trial if you need more time.",
				},
			})
		}
	}
	return out
}

func (d *Detector) detectPaid(m Metrics) []Signal {
	var out []Signal
	memberLimit := d.tables.PlanLimitFor(m.PlanName).Members

	switch {
	case memberLimit > 0 && m.TeamSize >= memberLimit:
		out = append(out, Signal{
			Type:        "team_at_capacity",
			Priority:    PriorityCritical,
			Details:     fmt.Sprintf("%d/%d members - AT LIMIT, cannot add more", m.TeamSize, memberLimit),
			Action:      "URGENT: offer Enterprise/upgrade with unlimited users",
			UrgencyDays: 2,
			CreateTask:  true,
			HotLead:     true,
			TalkingPoints: []string{
				"I noticed you're at your member limit. Are you blocked from adding teammates?",
				"Enterprise gives you unlimited users, priority support, and SSO.",
				"Your team is clearly growing, let's make sure the product grows with you.",
			},
		})
	case memberLimit > 0 && float64(m.TeamSize) >= float64(memberLimit)*0.8:
		out = append(out, Signal{
			Type:        "team_approaching_capacity",
			Priority:    PriorityHigh,
			Details:     fmt.Sprintf("%d/%d members - %d%% of limit", m.TeamSize, memberLimit, m.TeamSize*100/memberLimit),
			Action:      "Proactive: offer Enterprise trial before they hit the limit",
			UrgencyDays: 7,
			CreateTask:  true,
			TalkingPoints: []string{
				fmt.Sprintf("You're at %d out of %d members on your %s plan.", m.TeamSize, memberLimit, m.PlanName),
				"As your team grows, consider upgrading to avoid hitting the limit.",
			},
		})
	}

	if m.ActiveProjects >= 100 {
		out = append(out, Signal{
			Type:        "power_user_projects",
			Priority:    PriorityHigh,
			Details:     fmt.Sprintf("%d active projects (extreme usage)", m.ActiveProjects),
			Action:      "Check in about advanced needs, API access, automation opportunities",
			UrgencyDays: 14,
			CreateTask:  true,
			TalkingPoints: []string{
				fmt.Sprintf("I see you have %d active projects, you're clearly power users.", m.ActiveProjects),
				"Are there any workflows we can help automate or streamline?",
				"Would API access or advanced integrations be valuable?",
			},
		})
	}

	if m.ProjectsAllowed > 0 && float64(m.ActiveProjects) >= float64(m.ProjectsAllowed)*0.8 {
		nearLimit := float64(m.ActiveProjects) >= float64(m.ProjectsAllowed)*0.9
		priority, urgency := PriorityMedium, 14
		if nearLimit {
			priority, urgency = PriorityHigh, 7
		}
		out = append(out, Signal{
			Type:        "project_limit_approaching",
			Priority:    priority,
			Details:     fmt.Sprintf("%d/%d projects - %d%% of limit", m.ActiveProjects, m.ProjectsAllowed, m.ActiveProjects*100/m.ProjectsAllowed),
			Action:      "Offer plan upgrade with higher project limits",
			UrgencyDays: urgency,
			CreateTask:  true,
			TalkingPoints: []string{
				fmt.Sprintf("You're at %d out of %d projects.", m.ActiveProjects, m.ProjectsAllowed),
				"Let's discuss upgrading your plan before you hit the limit.",
			},
		})
	}

	if days, ok := d.daysUntil(m.SubscriptionExpUnix); ok && days > 0 && days <= 90 {
		priority, urgency := PriorityMedium, 14
		if days <= 30 {
			priority, urgency = PriorityHigh, 7
		}
		out = append(out, Signal{
			Type:        "subscription_expiring",
			Priority:    priority,
			Details:     fmt.Sprintf("Subscription expires in %d days", int(days)),
			Action:      "Renewal outreach, check satisfaction, explore upsell opportunity",
			UrgencyDays: urgency,
			CreateTask:  true,
			TalkingPoints: []string{
				fmt.Sprintf("Your subscription renews in %d days.", int(days)),
				"How has the product been working for your team?",
			},
		})
	}

	switch strings.ToLower(m.SubscriptionStatus) {
	case "canceled", "cancelled", "expired", "unpaid":
		out = append(out, Signal{
			Type:            "subscription_churned",
			Priority:        PriorityCritical,
			Details:         "Subscription status: " + m.SubscriptionStatus,
			Action:          "URGENT: win-back campaign, understand why they left",
			UrgencyDays:     1,
			CreateTask:      true,
			ChurnPrevention: true,
			TalkingPoints: []string{
				"I noticed your subscription status has changed.",
				"Can we schedule a quick call to understand what happened?",
				"We'd love to have you back and address any concerns.",
			},
		})
	}

	if m.ActiveProjects >= 10 && m.ChecklistsUsed == 0 {
		out = append(out, Signal{
			Type:        "low_feature_adoption",
			Priority:    PriorityLow,
			Details:     fmt.Sprintf("%d projects but 0 checklists used", m.ActiveProjects),
			Action:      "Customer success: show them the checklist feature to increase engagement",
			UrgencyDays: 30,
			// Customer success follow-up, not a sales task.
			CreateTask: false,
		})
	}

	return out
}
