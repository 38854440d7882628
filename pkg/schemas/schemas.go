package schemas

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ConfidenceLevels are the only values accepted for Meddic.Confidence.
var ConfidenceLevels = []string{"Cold", "Warm", "Hot", "Super-hot"}

// stringObjectSchema builds a draft 2020-12 schema for a flat object of
// string properties. Extra properties are tolerated; wrong types are not.
func stringObjectSchema(props ...string) map[string]any {
	properties := make(map[string]any, len(props))
	for _, p := range props {
		properties[p] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func compile(doc map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func mustCompile(doc map[string]any) *jsonschema.Schema {
	schema, err := compile(doc)
	if err != nil {
		panic(err)
	}
	return schema
}

// LeadIntelSchema validates LLM output for calendar-booking extraction.
var LeadIntelSchema = sync.OnceValue(func() *jsonschema.Schema {
	return mustCompile(stringObjectSchema(
		"first_name", "last_name", "company_name", "company_website",
		"company_type", "company_description", "industry", "team_size",
		"country", "state_or_region", "city", "phone", "referred_by",
		"tools_in_use", "stated_pain_points", "stated_demo_objectives",
		"additional_notes", "demo_datetime_utc", "demo_datetime_local",
		"bant_budget_signal", "bant_authority_signal", "bant_need_signal",
		"bant_timing_signal", "qualification_gaps",
		"recommended_discovery_questions", "demo_focus_recommendations",
		"sales_rep_cheat_sheet",
	))
})

// MeddicSchema validates LLM output for transcript extraction. Confidence
// is constrained to the four qualification levels.
var MeddicSchema = sync.OnceValue(func() *jsonschema.Schema {
	doc := stringObjectSchema(
		"metrics", "economic_buyer", "decision_criteria", "decision_process",
		"identified_pain", "champion", "competition", "next_steps", "risks",
	)
	levels := make([]any, len(ConfidenceLevels))
	for i, l := range ConfidenceLevels {
		levels[i] = l
	}
	doc["properties"].(map[string]any)["confidence"] = map[string]any{
		"type": "string",
		"enum": levels,
	}
	doc["required"] = []any{"confidence"}
	return mustCompile(doc)
})

// WebsiteIntelSchema validates LLM output for website analysis.
var WebsiteIntelSchema = sync.OnceValue(func() *jsonschema.Schema {
	return mustCompile(stringObjectSchema(
		"value_proposition", "target_market", "products_services",
		"pricing_model", "recent_news", "growth_signals", "key_pain_points",
		"competitors_mentioned", "sales_insights", "product_catalog",
		"certifications", "regulations", "team_size_signals",
		"tech_stack_signals", "customer_segments", "use_cases",
		"content_depth",
	))
})
