package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/revcrew/leadflow/pkg/crm"
	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/schemas"
)

// calendarPayload is the envelope of a calendar booking webhook. The
// scheduler emits both a flattened shape (invitee fields at the top of
// payload) and an older nested one; parseCalendarInfo handles both.
type calendarPayload struct {
	Payload struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		URI     string `json:"uri"`
		Phone   string `json:"text_reminder_number"`
		Invitee struct {
			Email string `json:"email"`
			Name  string `json:"name"`
			URI   string `json:"uri"`
			Phone string `json:"text_reminder_number"`
		} `json:"invitee"`
		ScheduledEvent struct {
			URI       string `json:"uri"`
			StartTime string `json:"start_time"`
			Timezone  string `json:"timezone"`
		} `json:"scheduled_event"`
		Event struct {
			URI       string `json:"uri"`
			StartTime string `json:"start_time"`
			Timezone  string `json:"timezone"`
		} `json:"event"`
		QuestionsAndAnswers []struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		} `json:"questions_and_answers"`
		Tracking map[string]string `json:"tracking"`
	} `json:"payload"`
}

// calendarInfo is the normalized booking.
type calendarInfo struct {
	Email        string
	Name         string
	FirstName    string
	LastName     string
	DemoDatetime string
	DemoTimezone string
	InviteeURI   string
	EventURI     string
	QAText       string
	Phone        string
	Tracking     map[string]string
}

func parseCalendarInfo(raw []byte) (calendarInfo, error) {
	var p calendarPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return calendarInfo{}, pipeline.Permanent("decoding calendar payload", err)
	}

	body := p.Payload
	info := calendarInfo{
		Email:      strings.TrimSpace(firstNonEmpty(body.Email, body.Invitee.Email)),
		Name:       strings.TrimSpace(firstNonEmpty(body.Name, body.Invitee.Name)),
		InviteeURI: firstNonEmpty(body.URI, body.Invitee.URI),
		Phone:      strings.TrimSpace(firstNonEmpty(body.Phone, body.Invitee.Phone)),
		Tracking:   body.Tracking,
	}
	if body.ScheduledEvent.URI != "" || body.ScheduledEvent.StartTime != "" {
		info.EventURI = body.ScheduledEvent.URI
		info.DemoDatetime = body.ScheduledEvent.StartTime
		info.DemoTimezone = body.ScheduledEvent.Timezone
	} else {
		info.EventURI = body.Event.URI
		info.DemoDatetime = body.Event.StartTime
		info.DemoTimezone = body.Event.Timezone
	}

	var qa []string
	for _, item := range body.QuestionsAndAnswers {
		if item.Question == "" || item.Answer == "" {
			continue
		}
		qa = append(qa, "Q: "+item.Question, "A: "+item.Answer)
	}
	info.QAText = strings.Join(qa, "\n")
	info.FirstName, info.LastName = splitName(info.Name)
	return info, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// handleDemoBooked runs LLM lead-intel extraction over a new booking and
// upserts the lead with status Demo Booked.
func (d *Deps) handleDemoBooked(ctx context.Context, ev *pipeline.Event) error {
	return d.processBooking(ctx, ev, bookingCreated)
}

// handleDemoRescheduled is booked semantics with the updated demo time; the
// staging layer gives reschedules their own idempotency key.
func (d *Deps) handleDemoRescheduled(ctx context.Context, ev *pipeline.Event) error {
	return d.processBooking(ctx, ev, bookingRescheduled)
}

type bookingKind int

const (
	bookingCreated bookingKind = iota
	bookingRescheduled
)

func (d *Deps) processBooking(ctx context.Context, ev *pipeline.Event, kind bookingKind) error {
	info, err := parseCalendarInfo(ev.Payload)
	if err != nil {
		return err
	}
	if info.Email == "" {
		return pipeline.Permanentf("calendar payload missing invitee email")
	}

	var intel schemas.LeadIntel
	system, user := leadIntelPrompts(info)
	if err := d.LLM.Extract(ctx, system, user, schemas.LeadIntelSchema(), &intel); err != nil {
		return err
	}

	fields := d.calendarLeadFields(info, d.Config.StatusDemoBooked, &intel)
	leadID, err := d.CRM.UpsertLeadByEmail(ctx, info.Email, fields)
	if err != nil {
		return err
	}

	var title string
	switch kind {
	case bookingRescheduled:
		title = "Demo Rescheduled"
	default:
		title = "Demo Booked"
	}
	if err := d.CRM.CreateNote(ctx, leadID, title, bookingNote(info, &intel)); err != nil {
		return err
	}

	demoAt := info.DemoDatetime
	if intel.DemoDatetimeLocal != "" && intel.DemoDatetimeLocal != "Not discussed" {
		demoAt = intel.DemoDatetimeLocal
	}
	d.notify(ctx, title,
		fmt.Sprintf("%s (%s)\nCompany: %s\nDemo: %s\nLead: %s",
			info.Name, info.Email, intel.CompanyName, demoAt, leadID),
		"info")

	if d.Config.AutoEnrichCalendar {
		d.stageEnrichment(ctx, strings.ToLower(info.Email))
	}
	return nil
}

// handleDemoCanceled flips the lead status. No LLM call: a cancellation
// carries nothing worth extracting.
func (d *Deps) handleDemoCanceled(ctx context.Context, ev *pipeline.Event) error {
	info, err := parseCalendarInfo(ev.Payload)
	if err != nil {
		return err
	}
	if info.Email == "" {
		return pipeline.Permanentf("calendar payload missing invitee email")
	}

	fields := d.calendarLeadFields(info, d.Config.StatusDemoCanceled, nil)
	leadID, err := d.CRM.UpsertLeadByEmail(ctx, info.Email, fields)
	if err != nil {
		return err
	}

	note := fmt.Sprintf("Cancellation received.\nInvitee: %s\nInvitee URI: %s", info.Email, info.InviteeURI)
	if err := d.CRM.CreateNote(ctx, leadID, "Demo Canceled", strings.TrimSpace(note)); err != nil {
		return err
	}

	d.notify(ctx, "Demo Canceled",
		fmt.Sprintf("%s (%s)\nLead: %s", info.Name, info.Email, leadID),
		"warning")
	return nil
}

// calendarLeadFields builds the lead record for a booking. intel may be nil
// (cancellations skip extraction).
func (d *Deps) calendarLeadFields(info calendarInfo, status string, intel *schemas.LeadIntel) crm.Fields {
	fields := crm.Fields{
		fieldEmail:      info.Email,
		fieldLeadStatus: status,
		fieldLeadSource: "Calendar",
	}
	if intel == nil {
		intel = &schemas.LeadIntel{}
	}

	first := firstNonEmpty(intel.FirstName, info.FirstName)
	last := firstNonEmpty(intel.LastName, info.LastName)
	setIf(fields, fieldFirstName, first)
	if last != "" {
		fields[fieldLastName] = last
	} else if first != "" {
		// The CRM requires a last name; fall back to the company, then a dot.
		fields[fieldLastName] = firstNonEmpty(intel.CompanyName, ".")
	}

	setIf(fields, fieldCompany, intel.CompanyName)
	setIf(fields, fieldWebsite, intel.CompanyWebsite)
	setIf(fields, fieldPhone, firstNonEmpty(info.Phone, intel.Phone))
	setIf(fields, fieldCountry, intel.Country)
	setIf(fields, fieldState, intel.StateOrRegion)
	setIf(fields, fieldCity, intel.City)
	setIf(fields, fieldIndustry, intel.Industry)
	setIf(fields, fieldReferredBy, intel.ReferredBy)

	if formatted := crmDatetime(firstNonEmpty(intel.DemoDatetimeUTC, info.DemoDatetime)); formatted != "" {
		fields[fieldDemoDate] = formatted
	}
	setIf(fields, fieldDemoTimezone, info.DemoTimezone)

	setIf(fields, fieldPainPoints, intel.StatedPainPoints)
	setIf(fields, fieldTeamMembers, intel.TeamSize)
	setIf(fields, fieldToolsInUse, intel.ToolsInUse)
	setIf(fields, fieldDemoObjectives, intel.StatedDemoObjectives)
	setIf(fields, fieldDemoFocus, intel.DemoFocusRecommendations)
	setIf(fields, fieldDiscoveryQuestions, intel.RecommendedDiscoveryQuestions)
	setIf(fields, fieldCheatSheet, intel.SalesRepCheatSheet)
	setIf(fields, fieldCompanyType, intel.CompanyType)
	setIf(fields, fieldCompanyDescription, intel.CompanyDescription)
	setIf(fields, fieldQualificationGaps, intel.QualificationGaps)
	setIf(fields, fieldBANTBudget, intel.BANTBudgetSignal)
	setIf(fields, fieldBANTAuthority, intel.BANTAuthoritySignal)
	setIf(fields, fieldBANTNeed, intel.BANTNeedSignal)
	setIf(fields, fieldBANTTiming, intel.BANTTimingSignal)
	return fields
}

func bookingNote(info calendarInfo, intel *schemas.LeadIntel) string {
	var lines []string
	switch {
	case intel.DemoDatetimeLocal != "" && intel.DemoDatetimeLocal != "Not discussed":
		lines = append(lines, "Demo datetime: "+intel.DemoDatetimeLocal)
	case info.DemoDatetime != "":
		lines = append(lines, fmt.Sprintf("Demo datetime: %s (%s)", info.DemoDatetime, info.DemoTimezone))
	}
	if info.QAText != "" {
		lines = append(lines, "", "Q&A:", info.QAText)
	}
	if intelText := leadIntelText(intel); intelText != "" {
		lines = append(lines, "", "Lead intel:", intelText)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// leadIntelText renders the extracted intel as a readable note body.
func leadIntelText(intel *schemas.LeadIntel) string {
	var parts []string
	add := func(label, value string) {
		if value != "" && value != "Not discussed" {
			parts = append(parts, label+": "+value)
		}
	}
	if intel.CompanyName != "" || intel.CompanyType != "" {
		parts = append(parts, fmt.Sprintf("Company: %s (%s)", intel.CompanyName, intel.CompanyType))
	}
	add("Description", intel.CompanyDescription)
	add("Team size", intel.TeamSize)
	add("Tools in use", intel.ToolsInUse)
	add("Pain points", intel.StatedPainPoints)
	add("Demo objectives", intel.StatedDemoObjectives)
	return strings.Join(parts, "\n\n")
}
