package signals

import (
	"fmt"
	"strings"
	"time"

	"github.com/revcrew/leadflow/pkg/crm"
)

// maxSubjectLen is the CRM's task subject limit.
const maxSubjectLen = 255

var priorityEmoji = map[string]string{
	PriorityCritical: "🔥",
	PriorityHigh:     "🚀",
	PriorityMedium:   "⚡",
	PriorityLow:      "📌",
}

var crmPriority = map[string]string{
	PriorityCritical: "High",
	PriorityHigh:     "High",
	PriorityMedium:   "Normal",
	PriorityLow:      "Low",
}

// FormatTask renders a signal as the CRM task the sales team will see.
// The due date is today plus the signal's urgency window.
func FormatTask(sig Signal, companyName, companyID, contactEmail string, today time.Time) crm.Task {
	emoji, ok := priorityEmoji[sig.Priority]
	if !ok {
		emoji = priorityEmoji[PriorityLow]
	}
	zPriority, ok := crmPriority[sig.Priority]
	if !ok {
		zPriority = "Normal"
	}

	subject := fmt.Sprintf("%s %s: %s", emoji, titleCaseSignal(sig.Type), companyName)
	if runes := []rune(subject); len(runes) > maxSubjectLen {
		subject = string(runes[:maxSubjectLen])
	}

	lines := []string{
		"EXPANSION SIGNAL: " + titleCaseSignal(sig.Type),
		"",
		"Company: " + companyName,
	}
	if contactEmail != "" {
		lines = append(lines, "Contact: "+contactEmail)
	}
	lines = append(lines,
		"Company ID: "+companyID,
		"",
		"SIGNAL DETAILS:",
		"- "+sig.Details,
		"",
		"ACTION REQUIRED:",
		"- "+sig.Action,
		fmt.Sprintf("- Contact within %d days", sig.UrgencyDays),
	)
	if len(sig.TalkingPoints) > 0 {
		lines = append(lines, "", "TALKING POINTS:")
		for _, point := range sig.TalkingPoints {
			lines = append(lines, "- "+point)
		}
	}

	return crm.Task{
		Subject:     subject,
		DueDate:     today.AddDate(0, 0, sig.UrgencyDays).Format("2006-01-02"),
		Priority:    zPriority,
		Description: strings.Join(lines, "\n"),
	}
}

// titleCaseSignal turns team_at_capacity into Team At Capacity.
func titleCaseSignal(signalType string) string {
	words := strings.Split(signalType, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
