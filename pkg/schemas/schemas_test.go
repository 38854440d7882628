package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeddicSchemaAcceptsValidOutput(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{
		"metrics": "1. Reduce approval cycle",
		"economic_buyer": "Jane, VP Marketing",
		"identified_pain": "1. Slow client feedback",
		"confidence": "Hot"
	}`), &doc))
	assert.NoError(t, MeddicSchema().Validate(doc))
}

func TestMeddicSchemaRejectsBadConfidence(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"confidence": "Lukewarm"}`), &doc))
	assert.Error(t, MeddicSchema().Validate(doc))
}

func TestMeddicSchemaRequiresConfidence(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"metrics": "x"}`), &doc))
	assert.Error(t, MeddicSchema().Validate(doc))
}

func TestLeadIntelSchemaRejectsWrongType(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"first_name": 42}`), &doc))
	assert.Error(t, LeadIntelSchema().Validate(doc))
}

func TestLeadIntelSchemaToleratesExtraKeys(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"first_name": "Alice", "unexpected": "ok"}`), &doc))
	assert.NoError(t, LeadIntelSchema().Validate(doc))
}

func TestWebsiteIntelSchemaRoundTrip(t *testing.T) {
	intel := WebsiteIntel{
		ValueProposition: "Design review platform",
		SalesInsights:    "• Lead with proofing workflow",
	}
	raw, err := json.Marshal(intel)
	require.NoError(t, err)
	var doc any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NoError(t, WebsiteIntelSchema().Validate(doc))
}
