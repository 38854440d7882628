package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// leadIntelPrompts builds the extraction prompts for a calendar booking.
// The user prompt restates the rules the extraction depends on; the model
// returns a flat JSON object matching the lead-intel schema.
func leadIntelPrompts(info calendarInfo) (system, user string) {
	system = "You are a senior B2B SaaS SDR. " +
		"Extract CRM-ready lead intelligence and demo qualification notes from the booking data below. " +
		"Use ONLY information stated or clearly implied. Do NOT invent facts. " +
		"Use concise, internal sales language. " +
		"Output MUST be a single valid JSON object with no markdown, commentary or explanations."

	var data []string
	data = append(data, "Name of person booking demo: "+info.Name)
	data = append(data, "Email: "+info.Email)
	if info.Phone != "" {
		data = append(data, "Phone: "+info.Phone)
	}
	if info.QAText != "" {
		data = append(data, "Questions and answers:", info.QAText)
	}
	if info.DemoTimezone != "" {
		data = append(data, "Timezone: "+info.DemoTimezone)
	}
	if info.DemoDatetime != "" {
		data = append(data, "Demo start time: "+info.DemoDatetime)
	}
	if len(info.Tracking) > 0 {
		data = append(data, fmt.Sprintf("Tracking: utm_source=%s, utm_medium=%s, utm_campaign=%s",
			info.Tracking["utm_source"], info.Tracking["utm_medium"], info.Tracking["utm_campaign"]))
	}

	user = strings.Join([]string{
		"Extract lead intelligence from the booking data below.",
		"",
		"Rules:",
		"- Extract every piece of information available; leave a field empty only when nothing applies.",
		"- Split the invitee name on spaces: first word is first_name, the rest is last_name. last_name must never be empty; fall back to the company name or \".\".",
		"- Derive company_name from the email domain in Title Case with the TLD removed, and company_website as https://{domain}. Personal mail domains get an empty company_website.",
		"- Infer country, state_or_region and city only from the timezone; use \"Unknown\" when not confidently inferable.",
		"- company_description is one factual line combining company type, stated pain points and tools in use, or \"Not discussed\".",
		"- For list-like fields use numbered items separated by real line breaks.",
		"- demo_datetime_utc is the start time exactly, ISO 8601 UTC. demo_datetime_local is human-readable in the invitee's timezone.",
		"- BANT signal fields capture budget, authority, need and timing evidence; use \"Unknown\" when absent.",
		"- Generate recommended_discovery_questions (3-4 short questions), demo_focus_recommendations (2-3 bullets) and a sales_rep_cheat_sheet (max 5 lines).",
		"",
		"Booking data:",
		strings.Join(data, "\n"),
		"",
		"Return ONLY the JSON object with actual extracted values, not a schema.",
	}, "\n")
	return system, user
}

// meddicPrompts builds the extraction prompts for a completed meeting.
func meddicPrompts(m meetingFields) (system, user string) {
	system = "You are a senior enterprise B2B SaaS sales analyst. " +
		"Extract CRM-ready MEDDIC qualification data from the meeting transcript below. " +
		"Use ONLY information stated or clearly implied. Do NOT invent facts. " +
		"Use internal, concise sales language. " +
		"Output MUST be a single valid JSON object with no markdown or text outside it."

	attendees, _ := json.Marshal(m.Attendees)
	user = strings.Join([]string{
		"Map the analysis to these JSON keys; a section that was not discussed must be an empty string:",
		"- metrics: business outcomes or KPIs they want (numbered list, newline separated)",
		"- economic_buyer: who controls budget or approves purchase (name, title, role)",
		"- decision_criteria: factors used to evaluate vendors (numbered list)",
		"- decision_process: steps and timeline for the decision (numbered list)",
		"- identified_pain: problems they are trying to solve (numbered list)",
		"- champion: internal advocate and why",
		"- competition: other vendors or current solutions mentioned",
		"- next_steps: concrete action items discussed (numbered list)",
		"- risks: blockers or concerns raised (numbered list)",
		"- confidence: overall qualification level, exactly one of \"Cold\", \"Warm\", \"Hot\", \"Super-hot\"",
		"",
		"Meeting context:",
		"- Title: " + m.Title,
		"- Date/Time: " + m.StartTime,
		"- Attendees: " + string(attendees),
		"- Summary: " + m.Summary,
		"",
		"Transcript:",
		m.Transcript,
		"",
		"Extract ALL MEDDIC fields from the transcript above. Return JSON only.",
	}, "\n")
	return system, user
}

// websiteIntelPrompts builds the analysis prompts over scraped site content.
func websiteIntelPrompts(combined string) (system, user string) {
	system = "You are a sharp B2B sales rep who just researched this company's website. " +
		"You are briefing a teammate before their demo call. " +
		"Write casual, conversational, actionable notes. " +
		"Focus on their business, their likely pain points, and how our review platform can help."

	user = strings.Join([]string{
		"I deep-dived this company's website across multiple pages. Here's what I found:",
		"",
		combined,
		"",
		"Write comprehensive intel notes as a single JSON object with exactly these keys,",
		"each a plain string (empty string when nothing was found):",
		"value_proposition, target_market, products_services, pricing_model, recent_news,",
		"growth_signals, key_pain_points, competitors_mentioned, sales_insights,",
		"product_catalog, certifications, regulations, team_size_signals,",
		"tech_stack_signals, customer_segments, use_cases, content_depth.",
		"",
		"sales_insights is 3-4 bullet points on how to approach the demo, newline separated, as one string.",
		"Keep it short, punchy and useful. Output JSON only, no markdown or explanation.",
	}, "\n")
	return system, user
}
