package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/revcrew/leadflow/pkg/config"
	"github.com/revcrew/leadflow/pkg/crm"
	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/schemas"
)

// attendee is one meeting participant as reported by the transcript source.
type attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// meetingFields is the normalized transcript webhook.
type meetingFields struct {
	Title           string
	StartTime       string
	EndTime         string
	Summary         string
	Transcript      string
	Attendees       []attendee
	Owner           attendee
	DurationMinutes int
	RecordingURL    string
}

// meetingPayload accepts the field aliases the transcript source has used
// across webhook versions.
type meetingPayload struct {
	Title        string `json:"title"`
	MeetingTitle string `json:"meeting_title"`

	StartTime string `json:"start_time"`
	Datetime  string `json:"datetime"`
	EndTime   string `json:"end_time"`

	Summary        string `json:"summary"`
	MeetingSummary string `json:"meeting_summary"`

	Transcript json.RawMessage `json:"transcript"`

	Attendees    []attendee `json:"attendees"`
	Participants []attendee `json:"participants"`
	Owner        attendee   `json:"owner"`

	DurationMinutes int `json:"duration_minutes"`

	RecordingURL string `json:"recording_url"`
	ReportURL    string `json:"report_url"`
}

// transcriptBody is the structured transcript shape: an object holding
// speaker blocks. A plain string transcript is also accepted.
type transcriptBody struct {
	SpeakerBlocks []struct {
		Speaker struct {
			Name string `json:"name"`
		} `json:"speaker"`
		Words string `json:"words"`
	} `json:"speaker_blocks"`
}

func parseMeetingFields(raw []byte) (meetingFields, error) {
	var p meetingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return meetingFields{}, pipeline.Permanent("decoding meeting payload", err)
	}

	m := meetingFields{
		Title:           firstNonEmpty(p.Title, p.MeetingTitle),
		StartTime:       firstNonEmpty(p.StartTime, p.Datetime),
		EndTime:         p.EndTime,
		Summary:         firstNonEmpty(p.Summary, p.MeetingSummary),
		Transcript:      flattenTranscript(p.Transcript),
		Owner:           p.Owner,
		DurationMinutes: p.DurationMinutes,
		RecordingURL:    firstNonEmpty(p.RecordingURL, p.ReportURL),
	}
	m.Attendees = p.Attendees
	if len(m.Attendees) == 0 {
		m.Attendees = p.Participants
	}
	if m.DurationMinutes == 0 {
		m.DurationMinutes = durationMinutes(m.StartTime, m.EndTime)
	}
	return m, nil
}

// flattenTranscript renders speaker blocks as "Name: words" lines. A bare
// string transcript passes through unchanged.
func flattenTranscript(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var body transcriptBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	var lines []string
	for _, block := range body.SpeakerBlocks {
		words := strings.TrimSpace(block.Words)
		if words == "" {
			continue
		}
		if name := strings.TrimSpace(block.Speaker.Name); name != "" {
			lines = append(lines, name+": "+words)
		} else {
			lines = append(lines, words)
		}
	}
	return strings.Join(lines, "\n")
}

func durationMinutes(start, end string) int {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return 0
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return 0
	}
	if mins := int(e.Sub(s).Minutes()); mins > 0 {
		return mins
	}
	return 0
}

// isExternalEmail reports whether the address belongs to a prospect: not
// one of our own domains and not a calendar resource address.
func isExternalEmail(cfg *config.Config, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return false
	}
	if strings.HasSuffix(email, "@group.calendar.google.com") ||
		strings.HasSuffix(email, "@resource.calendar.google.com") {
		return false
	}
	domain := email[strings.LastIndexByte(email, '@')+1:]
	return !cfg.IsCustomerDomain(domain)
}

// externalEmails ranks candidate prospect addresses: the meeting owner
// first when external (usually the person who booked), then the remaining
// external attendees in input order, deduplicated.
func externalEmails(cfg *config.Config, attendees []attendee, owner attendee) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(email string) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || seen[email] || !isExternalEmail(cfg, email) {
			return
		}
		seen[email] = true
		out = append(out, email)
	}
	add(owner.Email)
	for _, a := range attendees {
		add(a.Email)
	}
	return out
}

// handleMeetingCompleted matches a finished meeting to a lead, extracts
// MEDDIC qualification from the transcript, and writes it back.
func (d *Deps) handleMeetingCompleted(ctx context.Context, ev *pipeline.Event) error {
	m, err := parseMeetingFields(ev.Payload)
	if err != nil {
		return err
	}

	if m.DurationMinutes > 0 && m.DurationMinutes < d.Config.MinDurationMinutes {
		return pipeline.Ignored(fmt.Sprintf("meeting too short: %d minutes", m.DurationMinutes))
	}

	candidates := externalEmails(d.Config, m.Attendees, m.Owner)
	if len(candidates) == 0 {
		return pipeline.Permanentf("no external attendee email available to match a lead")
	}

	// First candidate with an existing lead wins; the booker may not be the
	// only attendee from their company.
	var email string
	var existing crm.Fields
	for _, candidate := range candidates {
		lead, err := d.CRM.FindLeadByEmail(ctx, candidate)
		if err != nil {
			return err
		}
		if lead != nil {
			email = candidate
			existing = lead
			break
		}
	}
	if email == "" {
		email = candidates[0]
	}

	leadID, existingDemoDate, err := d.ensureMeetingLead(ctx, email, existing, m)
	if err != nil {
		return err
	}

	var meddic schemas.Meddic
	system, user := meddicPrompts(m)
	if err := d.LLM.Extract(ctx, system, user, schemas.MeddicSchema(), &meddic); err != nil {
		return err
	}

	update := d.meddicLeadFields(&meddic)
	update[fieldEmail] = email
	if formatted := crmDatetime(m.StartTime); formatted != "" {
		if existingDemoDate == "" || d.Config.DemoDatePolicy == config.DemoDateOverwrite {
			update[fieldDemoDate] = formatted
		}
	}
	if err := d.CRM.UpdateLead(ctx, leadID, update); err != nil {
		return err
	}

	noteTitle := "Demo Summary (MEDDIC) - " + d.now().UTC().Format("2006-01-02")
	if err := d.CRM.CreateNote(ctx, leadID, noteTitle, meddicNote(&meddic, m)); err != nil {
		return err
	}

	if d.Config.CreateFollowupTask {
		task := crm.Task{
			Subject:     "Follow up after demo",
			DueDate:     nextBusinessDay(d.now()).Format("2006-01-02"),
			Priority:    "High",
			Description: strings.TrimSpace("Next steps:\n" + meddic.NextSteps),
		}
		if err := d.CRM.CreateTask(ctx, leadID, task); err != nil {
			return err
		}
	}

	d.notify(ctx, "Demo Completed",
		fmt.Sprintf("%s\nDuration: %d min\nConfidence: %s\nLead: %s",
			email, m.DurationMinutes, meddic.Confidence, leadID),
		"info")
	return nil
}

// ensureMeetingLead returns the lead id for the matched email, creating a
// minimal lead when no attendee matched. The second return is the demo
// datetime already on the lead, empty when absent.
func (d *Deps) ensureMeetingLead(ctx context.Context, email string, existing crm.Fields, m meetingFields) (string, string, error) {
	if existing != nil {
		id, _ := existing["id"].(string)
		demoDate, _ := existing[fieldDemoDate].(string)
		return id, demoDate, nil
	}

	first, last := attendeeName(m.Attendees, email)
	fields := crm.Fields{
		fieldEmail:      email,
		fieldLeadStatus: d.Config.StatusDemoComplete,
		fieldLastName:   firstNonEmpty(last, "."),
	}
	setIf(fields, fieldFirstName, first)
	if formatted := crmDatetime(m.StartTime); formatted != "" {
		fields[fieldDemoDate] = formatted
	}

	leadID, err := d.CRM.UpsertLeadByEmail(ctx, email, fields)
	if err != nil {
		return "", "", err
	}
	note := "Created from a meeting transcript because no existing lead matched attendee email: " + email
	if err := d.CRM.CreateNote(ctx, leadID, "Lead Created From Meeting", note); err != nil {
		return "", "", err
	}
	return leadID, "", nil
}

// attendeeName looks up the matched attendee's name, truncated to the
// CRM's 40-character name limit.
func attendeeName(attendees []attendee, email string) (first, last string) {
	for _, a := range attendees {
		if strings.EqualFold(strings.TrimSpace(a.Email), email) {
			first, last = splitName(a.Name)
			break
		}
	}
	if len(first) > 40 {
		first = first[:40]
	}
	if len(last) > 40 {
		last = last[:40]
	}
	return first, last
}

func (d *Deps) meddicLeadFields(meddic *schemas.Meddic) crm.Fields {
	fields := crm.Fields{
		fieldLeadStatus: d.Config.StatusDemoComplete,
	}
	setIf(fields, fieldMeddicMetrics, meddic.Metrics)
	setIf(fields, fieldMeddicEconomicBuyer, meddic.EconomicBuyer)
	setIf(fields, fieldMeddicDecisionCriteria, meddic.DecisionCriteria)
	setIf(fields, fieldMeddicDecisionProcess, meddic.DecisionProcess)
	setIf(fields, fieldMeddicIdentifiedPain, meddic.IdentifiedPain)
	setIf(fields, fieldMeddicChampion, meddic.Champion)
	setIf(fields, fieldMeddicCompetition, meddic.Competition)
	setIf(fields, fieldMeddicConfidence, meddic.Confidence)
	return fields
}

func meddicNote(meddic *schemas.Meddic, m meetingFields) string {
	var lines []string
	if meddic.Confidence != "" {
		lines = append(lines, "Confidence: "+meddic.Confidence, "")
	}
	if summary := attendeeSummary(m); summary != "" {
		lines = append(lines, "Meeting attendees:\n"+summary, "")
	}
	section := func(title, body string) {
		if body = strings.TrimSpace(body); body != "" {
			lines = append(lines, title+":\n"+body, "")
		}
	}
	section("Metrics", meddic.Metrics)
	section("Economic buyer", meddic.EconomicBuyer)
	section("Decision criteria", meddic.DecisionCriteria)
	section("Decision process", meddic.DecisionProcess)
	section("Identified pain", meddic.IdentifiedPain)
	section("Champion", meddic.Champion)
	section("Competition", meddic.Competition)
	section("Next steps", meddic.NextSteps)
	section("Risks", meddic.Risks)
	if m.RecordingURL != "" {
		lines = append(lines, "Recording: "+m.RecordingURL)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func attendeeSummary(m meetingFields) string {
	var lines []string
	ownerEmail := strings.ToLower(strings.TrimSpace(m.Owner.Email))
	for _, a := range m.Attendees {
		email := strings.TrimSpace(a.Email)
		name := strings.TrimSpace(a.Name)
		if email == "" && name == "" {
			continue
		}
		var parts []string
		if name != "" {
			parts = append(parts, name)
		}
		if email != "" {
			parts = append(parts, "<"+email+">")
		}
		if ownerEmail != "" && strings.EqualFold(email, ownerEmail) {
			parts = append(parts, "(meeting owner)")
		}
		lines = append(lines, "- "+strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n")
}
