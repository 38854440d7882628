package jobs

import (
	"strings"
	"time"

	"github.com/revcrew/leadflow/pkg/crm"
)

// CRM field names shared by the handlers. The standard lead fields use the
// CRM's own naming; the rest are custom fields provisioned in the Leads
// module.
const (
	fieldEmail       = "Email"
	fieldFirstName   = "First_Name"
	fieldLastName    = "Last_Name"
	fieldCompany     = "Company"
	fieldWebsite     = "Website"
	fieldPhone       = "Phone"
	fieldCountry     = "Country"
	fieldState       = "State"
	fieldCity        = "City"
	fieldIndustry    = "Industry"
	fieldLeadStatus  = "Lead_Status"
	fieldLeadSource  = "Lead_Source"
	fieldEmployees   = "No_of_Employees"
	fieldDescription = "Description"

	fieldDemoDate     = "Demo_Date"
	fieldDemoTimezone = "Demo_Timezone"
	fieldReferredBy   = "Referred_By"

	fieldPainPoints         = "Pain_Points"
	fieldTeamMembers        = "Team_Members"
	fieldToolsInUse         = "Tools_Currently_Used"
	fieldDemoObjectives     = "Demo_Objectives"
	fieldDemoFocus          = "Demo_Focus_Recommendation"
	fieldDiscoveryQuestions = "Discovery_Questions"
	fieldCheatSheet         = "Sales_Rep_Cheat_Sheet"
	fieldCompanyType        = "Company_Type"
	fieldCompanyDescription = "Company_Description"
	fieldQualificationGaps  = "Qualification_Gaps"
	fieldBANTBudget         = "BANT_Budget"
	fieldBANTAuthority      = "BANT_Authority"
	fieldBANTNeed           = "BANT_Need"
	fieldBANTTiming         = "BANT_Timing"

	fieldMeddicMetrics          = "MEDDIC_Metrics"
	fieldMeddicEconomicBuyer    = "MEDDIC_Economic_Buyer"
	fieldMeddicDecisionCriteria = "MEDDIC_Decision_Criteria"
	fieldMeddicDecisionProcess  = "MEDDIC_Decision_Process"
	fieldMeddicIdentifiedPain   = "MEDDIC_Identified_Pain"
	fieldMeddicChampion         = "MEDDIC_Champion"
	fieldMeddicCompetition      = "MEDDIC_Competition"
	fieldMeddicConfidence       = "MEDDIC_Confidence"

	fieldJobTitle           = "Enriched_Job_Title"
	fieldSeniority          = "Enriched_Seniority"
	fieldDepartment         = "Enriched_Department"
	fieldLinkedIn           = "Enriched_LinkedIn"
	fieldEnrichedPhone      = "Enriched_Phone"
	fieldCompanySize        = "Enriched_Company_Size"
	fieldCompanyRevenue     = "Enriched_Company_Revenue"
	fieldCompanyIndustry    = "Enriched_Company_Industry"
	fieldCompanyFoundedYear = "Enriched_Founded_Year"
	fieldFundingStage       = "Enriched_Funding_Stage"
	fieldFundingTotal       = "Enriched_Funding_Total"
	fieldTechStack          = "Enriched_Tech_Stack"
)

// setIf writes a field when the value carries information. The LLM emits
// "Not discussed" and "Unknown" as explicit blanks; neither belongs in the
// CRM.
func setIf(fields crm.Fields, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" || value == "Not discussed" || value == "Unknown" {
		return
	}
	fields[name] = value
}

// crmDatetime normalizes an upstream timestamp to the CRM's datetime
// format (UTC with an explicit +00:00 offset). Returns "" when the input
// cannot be parsed.
func crmDatetime(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	// Some upstreams emit both an offset and a trailing Z.
	if strings.HasSuffix(s, "Z") && strings.Contains(s[:len(s)-1], "+") {
		s = s[:len(s)-1]
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05+00:00")
		}
	}
	return ""
}

// nextBusinessDay returns the next weekday strictly after t.
func nextBusinessDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// splitName splits a display name into first and last on the first space.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
