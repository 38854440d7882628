package jobs

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

const meddicResponse = `{
	"metrics": "1. Cut review turnaround from 5 days to 1",
	"economic_buyer": "Dana Reyes, VP Operations",
	"decision_criteria": "1. SSO support\n2. Audit trail",
	"decision_process": "1. Security review\n2. Pilot with one team",
	"identified_pain": "1. Reviews lost in email threads",
	"champion": "Bob Jones, ops lead, pushed for the demo",
	"competition": "Currently on spreadsheets",
	"next_steps": "1. Send pilot proposal\n2. Book security review",
	"risks": "1. Budget freeze until Q3",
	"confidence": "Hot"
}`

func meetingPayloadJSON(attendeesJSON string) string {
	return `{
		"title": "Acme demo",
		"start_time": "2026-03-12T14:00:00Z",
		"end_time": "2026-03-12T14:45:00Z",
		"summary": "Walked through the review workflow.",
		"transcript": {"speaker_blocks": [
			{"speaker": {"name": "Bob Jones"}, "words": "We keep losing reviews in email."}
		]},
		"attendees": ` + attendeesJSON + `,
		"owner": {"name": "Sam Seller", "email": "sam@ours.example"},
		"recording_url": "https://recordings.example/m/1"
	}`
}

func TestMeetingTooShortIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.deps.LLM = newScriptedLLM(t)

	payload := `{"title":"Quick sync","duration_minutes":4,
		"attendees":[{"name":"Alice Smith","email":"alice@acme.example"}]}`
	err := NewRegistry(env.deps).Dispatch(context.Background(),
		stagedEvent(pipeline.SourceMeeting, "completed", "m1", payload))

	var ignored *pipeline.IgnoredError
	require.ErrorAs(t, err, &ignored)
	assert.Contains(t, ignored.Reason, "too short")
	assert.Empty(t, env.crm.recorded())
}

func TestMeetingWithoutExternalAttendeesIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	env.deps.LLM = newScriptedLLM(t)

	payload := meetingPayloadJSON(`[
		{"name": "Sam Seller", "email": "sam@ours.example"},
		{"name": "Room 4", "email": "room4@resource.calendar.google.com"}
	]`)
	err := NewRegistry(env.deps).Dispatch(context.Background(),
		stagedEvent(pipeline.SourceMeeting, "completed", "m2", payload))

	var perm *pipeline.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Empty(t, env.crm.recorded())
}

func TestMeetingMatchesFirstAttendeeWithExistingLead(t *testing.T) {
	env := newTestEnv(t)
	env.deps.LLM = newScriptedLLM(t, meddicResponse)
	// alice has no lead; bob does, with a demo date already on it.
	env.crm.addLead("bob@beta.example", map[string]any{
		"id":        "lead-bob",
		"Demo_Date": "2026-03-01T10:00:00+00:00",
	})

	payload := meetingPayloadJSON(`[
		{"name": "Alice Smith", "email": "alice@acme.example"},
		{"name": "Bob Jones", "email": "bob@beta.example"}
	]`)
	require.NoError(t, NewRegistry(env.deps).Dispatch(context.Background(),
		stagedEvent(pipeline.SourceMeeting, "completed", "m3", payload)))

	// No new lead; the MEDDIC update lands on bob's.
	assert.Empty(t, env.crm.callsTo(http.MethodPost, "/Leads"))
	updates := env.crm.callsTo(http.MethodPut, "/Leads/lead-bob")
	require.Len(t, updates, 1)
	update := updates[0].Record()
	assert.Equal(t, "bob@beta.example", update["Email"])
	assert.Equal(t, "Demo Complete", update["Lead_Status"])
	assert.Equal(t, "Hot", update["MEDDIC_Confidence"])
	// preserve_existing keeps the demo date already on the lead.
	assert.NotContains(t, update, "Demo_Date")

	notes := env.crm.callsTo(http.MethodPost, "/Notes")
	require.Len(t, notes, 1)
	note := notes[0].Record()
	assert.Equal(t, "Demo Summary (MEDDIC) - 2026-03-13", note["Note_Title"])
	assert.Contains(t, note["Note_Content"], "Confidence: Hot")
	assert.Contains(t, note["Note_Content"], "Recording: https://recordings.example/m/1")

	notices := env.notifier.recorded()
	require.Len(t, notices, 1)
	assert.Equal(t, "Demo Completed", notices[0].Title)
}

func TestMeetingCreatesLeadAndFollowupTask(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Config.CreateFollowupTask = true
	env.deps.LLM = newScriptedLLM(t, meddicResponse)

	payload := meetingPayloadJSON(`[{"name": "Alice Smith", "email": "alice@acme.example"}]`)
	require.NoError(t, NewRegistry(env.deps).Dispatch(context.Background(),
		stagedEvent(pipeline.SourceMeeting, "completed", "m4", payload)))

	creates := env.crm.callsTo(http.MethodPost, "/Leads")
	require.Len(t, creates, 1)
	lead := creates[0].Record()
	assert.Equal(t, "alice@acme.example", lead["Email"])
	assert.Equal(t, "Alice", lead["First_Name"])
	assert.Equal(t, "Smith", lead["Last_Name"])
	assert.Equal(t, "2026-03-12T14:00:00+00:00", lead["Demo_Date"])

	// Two notes: lead provenance plus the MEDDIC summary.
	notes := env.crm.callsTo(http.MethodPost, "/Notes")
	require.Len(t, notes, 2)
	assert.Equal(t, "Lead Created From Meeting", notes[0].Record()["Note_Title"])

	tasks := env.crm.callsTo(http.MethodPost, "/Tasks")
	require.Len(t, tasks, 1)
	task := tasks[0].Record()
	assert.Equal(t, "Follow up after demo", task["Subject"])
	// The frozen clock is a Friday; the next business day is Monday.
	assert.Equal(t, "2026-03-16", task["Due_Date"])
	assert.Equal(t, "High", task["Priority"])
	assert.Contains(t, task["Description"], "Send pilot proposal")
}

func TestExternalEmailsRanksOwnerFirst(t *testing.T) {
	cfg := testConfig()
	attendees := []attendee{
		{Name: "Sam Seller", Email: "sam@ours.example"},
		{Name: "Alice Smith", Email: "alice@acme.example"},
		{Name: "Carol", Email: "CAROL@acme.example"},
		{Name: "Carol again", Email: "carol@acme.example"},
	}

	got := externalEmails(cfg, attendees, attendee{Email: "carol@acme.example"})
	assert.Equal(t, []string{"carol@acme.example", "alice@acme.example"}, got)

	// Internal owner falls out entirely.
	got = externalEmails(cfg, attendees, attendee{Email: "sam@ours.example"})
	assert.Equal(t, []string{"alice@acme.example", "carol@acme.example"}, got)
}

func TestFlattenTranscriptShapes(t *testing.T) {
	assert.Equal(t, "plain text", flattenTranscript([]byte(`"plain text"`)))

	structured := `{"speaker_blocks":[
		{"speaker":{"name":"Alice"},"words":"Hello there."},
		{"speaker":{"name":""},"words":"Unattributed."},
		{"speaker":{"name":"Bob"},"words":"   "}
	]}`
	assert.Equal(t, "Alice: Hello there.\nUnattributed.", flattenTranscript([]byte(structured)))
	assert.Empty(t, flattenTranscript(nil))
}
