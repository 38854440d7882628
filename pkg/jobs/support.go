package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/revcrew/leadflow/pkg/crm"
	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/signals"
)

// supportEnvelope is the support platform's webhook wrapper: the payload of
// interest sits at data.item. For tag events the item is either the contact
// itself or a contact_tag wrapper holding one.
type supportEnvelope struct {
	Data struct {
		Item json.RawMessage `json:"item"`
	} `json:"data"`
}

type supportContact struct {
	Type             string            `json:"type"`
	ID               string            `json:"id"`
	ExternalID       string            `json:"external_id"`
	Email            string            `json:"email"`
	Name             string            `json:"name"`
	Phone            string            `json:"phone"`
	CustomAttributes map[string]any    `json:"custom_attributes"`
	Tags             supportTagList    `json:"tags"`
	Companies        supportCompanyRef `json:"companies"`

	// Set when the item is a contact_tag wrapper.
	Contact *supportContact `json:"contact"`
}

type supportTagList struct {
	Data []struct {
		Name string `json:"name"`
	} `json:"data"`
}

type supportCompanyRef struct {
	Data []struct {
		Name     string `json:"name"`
		Website  string `json:"website"`
		Size     int    `json:"size"`
		Industry string `json:"industry"`
	} `json:"data"`
}

// parseSupportContact unwraps data.item down to the tagged contact.
func parseSupportContact(raw []byte) (*supportContact, error) {
	var env supportEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, pipeline.Permanent("decoding support payload", err)
	}
	var item supportContact
	if err := json.Unmarshal(env.Data.Item, &item); err != nil {
		return nil, pipeline.Permanent("decoding support contact", err)
	}
	if item.Type == "contact_tag" && item.Contact != nil {
		return item.Contact, nil
	}
	return &item, nil
}

// handleTagAdded qualifies a support contact into a lead. The HTTP layer
// already filters on qualifying tags; the handler re-checks so replayed
// events with since-removed tags still resolve deterministically.
func (d *Deps) handleTagAdded(ctx context.Context, ev *pipeline.Event) error {
	contact, err := parseSupportContact(ev.Payload)
	if err != nil {
		return err
	}
	if contact.Email == "" {
		return pipeline.Permanentf("support payload missing contact email")
	}

	var tags []string
	for _, t := range contact.Tags.Data {
		if t.Name != "" {
			tags = append(tags, t.Name)
		}
	}
	var matched []string
	for _, tag := range tags {
		if d.Config.IsQualifyingTag(tag) {
			matched = append(matched, tag)
		}
	}
	if len(matched) == 0 {
		// The webhook fired, so the tag existed at tagging time. Keep the
		// first remaining tag as the audit trail rather than dropping the lead.
		if len(tags) > 0 {
			matched = tags[:1]
		} else {
			matched = []string{"Lead"}
		}
	}

	fields := d.supportLeadFields(contact)
	leadID, err := d.CRM.UpsertLeadByEmail(ctx, contact.Email, fields)
	if err != nil {
		return err
	}

	note := supportQualifiedNote(contact, matched)
	if err := d.CRM.CreateNote(ctx, leadID, "Support Contact Qualified", note); err != nil {
		return err
	}

	company := ""
	if len(contact.Companies.Data) > 0 {
		company = contact.Companies.Data[0].Name
	}
	d.notify(ctx, "Support Lead Qualified",
		fmt.Sprintf("%s (%s)\nCompany: %s\nTags: %s\nLead: %s",
			contact.Name, contact.Email, company, strings.Join(matched, ", "), leadID),
		"info")

	if d.Config.AutoEnrichSupport {
		d.stageEnrichment(ctx, strings.ToLower(contact.Email))
	}
	return nil
}

func (d *Deps) supportLeadFields(contact *supportContact) crm.Fields {
	fields := crm.Fields{
		fieldEmail:      contact.Email,
		fieldLeadStatus: d.Config.StatusSupportQualified,
		fieldLeadSource: "Support",
	}
	first, last := splitName(contact.Name)
	setIf(fields, fieldFirstName, first)
	if last != "" {
		fields[fieldLastName] = last
	} else if first != "" {
		fields[fieldLastName] = "."
	}
	setIf(fields, fieldPhone, contact.Phone)
	if len(contact.Companies.Data) > 0 {
		company := contact.Companies.Data[0]
		setIf(fields, fieldCompany, company.Name)
		setIf(fields, fieldWebsite, company.Website)
		setIf(fields, fieldIndustry, company.Industry)
		if company.Size > 0 {
			fields[fieldEmployees] = company.Size
		}
	}
	return fields
}

func supportQualifiedNote(contact *supportContact, tags []string) string {
	var lines []string
	lines = append(lines, "Contact ID: "+contact.ID)
	if contact.ExternalID != "" {
		lines = append(lines, "External ID: "+contact.ExternalID)
	}
	lines = append(lines, "Qualifying tags: "+strings.Join(tags, ", "))
	if len(contact.Companies.Data) > 0 {
		company := contact.Companies.Data[0]
		lines = append(lines, "", "Company:")
		if company.Name != "" {
			lines = append(lines, "- Name: "+company.Name)
		}
		if company.Website != "" {
			lines = append(lines, "- Website: "+company.Website)
		}
		if company.Size > 0 {
			lines = append(lines, fmt.Sprintf("- Size: %d employees", company.Size))
		}
		if company.Industry != "" {
			lines = append(lines, "- Industry: "+company.Industry)
		}
	}
	return strings.Join(lines, "\n")
}

// supportCompany is the company.updated item.
type supportCompany struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	UserCount        int            `json:"user_count"`
	CustomAttributes map[string]any `json:"custom_attributes"`
	PrimaryContact   struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"primary_contact"`
}

// handleCompanyUpdated runs signal detection over a company's usage
// metrics, upserts one lead per company, and turns actionable signals into
// CRM tasks. Critical and high signals also alert the sales channel.
func (d *Deps) handleCompanyUpdated(ctx context.Context, ev *pipeline.Event) error {
	var env supportEnvelope
	if err := json.Unmarshal(ev.Payload, &env); err != nil {
		return pipeline.Permanent("decoding support payload", err)
	}
	var company supportCompany
	if err := json.Unmarshal(env.Data.Item, &company); err != nil {
		return pipeline.Permanent("decoding support company", err)
	}
	if company.Name == "" {
		company.Name = "Unknown Company"
	}

	metrics := companyMetrics(&company)
	detected := d.Detector.Detect(metrics)
	if len(detected) == 0 {
		return nil
	}

	fields := companyLeadFields(&company, metrics)
	leadID, err := d.CRM.UpsertLeadByCompany(ctx, company.Name, fields)
	if err != nil {
		return err
	}

	if err := d.CRM.CreateNote(ctx, leadID, "Expansion Signals", signalsNote(&company, detected)); err != nil {
		return err
	}

	today := d.now().UTC()
	for _, sig := range detected {
		if sig.CreateTask {
			task := signals.FormatTask(sig, company.Name, company.ID, company.PrimaryContact.Email, today)
			if err := d.CRM.CreateTask(ctx, leadID, task); err != nil {
				return err
			}
		}
		switch sig.Priority {
		case signals.PriorityCritical:
			d.notify(ctx, "Expansion Signal: "+sig.Type,
				fmt.Sprintf("Company: %s\n%s\nAction: %s\nLead: %s", company.Name, sig.Details, sig.Action, leadID),
				"error")
		case signals.PriorityHigh:
			d.notify(ctx, "Expansion Signal: "+sig.Type,
				fmt.Sprintf("Company: %s\n%s\nAction: %s\nLead: %s", company.Name, sig.Details, sig.Action, leadID),
				"warning")
		}
	}
	return nil
}

// companyMetrics pulls the usage numbers from the company's custom
// attributes. user_count backs team_size when the attribute is absent.
func companyMetrics(company *supportCompany) signals.Metrics {
	attrs := company.CustomAttributes
	m := signals.Metrics{
		TeamSize:            attrInt(attrs, "team_size"),
		ActiveProjects:      attrInt(attrs, "active_projects"),
		ProjectsAllowed:     attrInt(attrs, "projects_allowed"),
		PlanName:            attrString(attrs, "plan_name"),
		SubscriptionStatus:  attrString(attrs, "subscription_status"),
		SubscriptionExpUnix: int64(attrInt(attrs, "subscription_expires_at")),
		ChecklistsUsed:      attrInt(attrs, "checklists_used"),
	}
	if m.TeamSize == 0 {
		m.TeamSize = company.UserCount
	}
	return m
}

func attrString(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}

func attrInt(attrs map[string]any, key string) int {
	switch v := attrs[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func companyLeadFields(company *supportCompany, m signals.Metrics) crm.Fields {
	fields := crm.Fields{
		fieldCompany:    company.Name,
		fieldLeadSource: "Support - Expansion Signal",
	}
	first, last := splitName(company.PrimaryContact.Name)
	setIf(fields, fieldFirstName, first)
	fields[fieldLastName] = firstNonEmpty(last, first, "Unknown")
	if company.PrimaryContact.Email != "" {
		fields[fieldEmail] = company.PrimaryContact.Email
	}
	if company.UserCount > 0 {
		fields[fieldEmployees] = company.UserCount
	}

	var desc []string
	if m.PlanName != "" {
		desc = append(desc, "Plan: "+m.PlanName)
	}
	if m.ActiveProjects > 0 || m.ProjectsAllowed > 0 {
		desc = append(desc, fmt.Sprintf("Active projects: %d/%d", m.ActiveProjects, m.ProjectsAllowed))
	}
	if m.TeamSize > 0 {
		desc = append(desc, fmt.Sprintf("Team size: %d", m.TeamSize))
	}
	if m.SubscriptionStatus != "" {
		desc = append(desc, "Subscription status: "+m.SubscriptionStatus)
	}
	if len(desc) > 0 {
		fields[fieldDescription] = strings.Join(desc, "\n")
	}
	return fields
}

func signalsNote(company *supportCompany, detected []signals.Signal) string {
	var lines []string
	lines = append(lines,
		"Company: "+company.Name,
		"Company ID: "+company.ID,
		fmt.Sprintf("User count: %d", company.UserCount))
	if company.PrimaryContact.Email != "" {
		lines = append(lines, fmt.Sprintf("Primary contact: %s (%s)",
			firstNonEmpty(company.PrimaryContact.Name, "Unknown"), company.PrimaryContact.Email))
	}
	lines = append(lines, "", fmt.Sprintf("Detected %d expansion signal(s):", len(detected)))
	for _, sig := range detected {
		lines = append(lines, "",
			fmt.Sprintf("%s (%s)", sig.Type, strings.ToUpper(sig.Priority)),
			"- Details: "+sig.Details,
			"- Action: "+sig.Action)
		for _, point := range sig.TalkingPoints {
			lines = append(lines, "  - "+point)
		}
	}
	return strings.Join(lines, "\n")
}
