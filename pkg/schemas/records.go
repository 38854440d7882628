// Package schemas holds the typed records extracted by the LLM and the
// enrichment providers, plus the JSON Schemas the LLM output is validated
// against.
package schemas

// LeadIntel is the CRM-ready intelligence extracted from a calendar booking.
type LeadIntel struct {
	FirstName                     string `json:"first_name"`
	LastName                      string `json:"last_name"`
	CompanyName                   string `json:"company_name"`
	CompanyWebsite                string `json:"company_website"`
	CompanyType                   string `json:"company_type"`
	CompanyDescription            string `json:"company_description"`
	Industry                      string `json:"industry"`
	TeamSize                      string `json:"team_size"`
	Country                       string `json:"country"`
	StateOrRegion                 string `json:"state_or_region"`
	City                          string `json:"city"`
	Phone                         string `json:"phone"`
	ReferredBy                    string `json:"referred_by"`
	ToolsInUse                    string `json:"tools_in_use"`
	StatedPainPoints              string `json:"stated_pain_points"`
	StatedDemoObjectives          string `json:"stated_demo_objectives"`
	AdditionalNotes               string `json:"additional_notes"`
	DemoDatetimeUTC               string `json:"demo_datetime_utc"`
	DemoDatetimeLocal             string `json:"demo_datetime_local"`
	BANTBudgetSignal              string `json:"bant_budget_signal"`
	BANTAuthoritySignal           string `json:"bant_authority_signal"`
	BANTNeedSignal                string `json:"bant_need_signal"`
	BANTTimingSignal              string `json:"bant_timing_signal"`
	QualificationGaps             string `json:"qualification_gaps"`
	RecommendedDiscoveryQuestions string `json:"recommended_discovery_questions"`
	DemoFocusRecommendations      string `json:"demo_focus_recommendations"`
	SalesRepCheatSheet            string `json:"sales_rep_cheat_sheet"`
}

// Meddic is the MEDDIC qualification record extracted from a meeting
// transcript. Confidence is one of Cold, Warm, Hot, Super-hot.
type Meddic struct {
	Metrics          string `json:"metrics"`
	EconomicBuyer    string `json:"economic_buyer"`
	DecisionCriteria string `json:"decision_criteria"`
	DecisionProcess  string `json:"decision_process"`
	IdentifiedPain   string `json:"identified_pain"`
	Champion         string `json:"champion"`
	Competition      string `json:"competition"`
	NextSteps        string `json:"next_steps"`
	Risks            string `json:"risks"`
	Confidence       string `json:"confidence"`
}

// WebsiteIntel is the LLM analysis of a company's public website.
type WebsiteIntel struct {
	ValueProposition     string `json:"value_proposition"`
	TargetMarket         string `json:"target_market"`
	ProductsServices     string `json:"products_services"`
	PricingModel         string `json:"pricing_model"`
	RecentNews           string `json:"recent_news"`
	GrowthSignals        string `json:"growth_signals"`
	KeyPainPoints        string `json:"key_pain_points"`
	CompetitorsMentioned string `json:"competitors_mentioned"`
	SalesInsights        string `json:"sales_insights"`
	ProductCatalog       string `json:"product_catalog"`
	Certifications       string `json:"certifications"`
	Regulations          string `json:"regulations"`
	TeamSizeSignals      string `json:"team_size_signals"`
	TechStackSignals     string `json:"tech_stack_signals"`
	CustomerSegments     string `json:"customer_segments"`
	UseCases             string `json:"use_cases"`
	ContentDepth         string `json:"content_depth"`
}

// PersonData is the contact-level enrichment record.
type PersonData struct {
	Email        string   `json:"email"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Title        string   `json:"title"`
	Seniority    string   `json:"seniority"`
	Department   string   `json:"department"`
	LinkedInURL  string   `json:"linkedin_url"`
	PhoneNumbers []string `json:"phone_numbers"`
}

// CompanyData is the company-level enrichment record.
type CompanyData struct {
	Name          string   `json:"name"`
	Domain        string   `json:"domain"`
	EmployeeCount string   `json:"employee_count"`
	Revenue       string   `json:"revenue"`
	Industry      string   `json:"industry"`
	FoundedYear   string   `json:"founded_year"`
	FundingStage  string   `json:"funding_stage"`
	FundingTotal  string   `json:"funding_total"`
	Technologies  []string `json:"technologies"`
	LinkedInURL   string   `json:"linkedin_url"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	Country       string   `json:"country"`
}

// EnrichmentResult aggregates the outcome of the enrichment fan-out.
// Sources lists which sub-steps produced data.
type EnrichmentResult struct {
	Person  *PersonData   `json:"person,omitempty"`
	Company *CompanyData  `json:"company,omitempty"`
	Website *WebsiteIntel `json:"website,omitempty"`
	Sources []string      `json:"sources"`
}
