package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/revcrew/leadflow/pkg/crm"
	"github.com/revcrew/leadflow/pkg/enrich"
	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/schemas"
	"github.com/revcrew/leadflow/pkg/scraper"
)

// enrichRequest is the manual enrichment payload.
type enrichRequest struct {
	Email  string `json:"email"`
	LeadID string `json:"lead_id"`
}

// handleEnrichRequest finds or creates a lead by email and fans out to the
// enrichment sub-steps. Each sub-step is independently best-effort; only
// all of them failing fails the handler.
func (d *Deps) handleEnrichRequest(ctx context.Context, ev *pipeline.Event) error {
	var req enrichRequest
	if err := decodePayload(ev, &req); err != nil {
		return err
	}
	if req.Email == "" {
		return pipeline.Permanentf("enrichment request missing email")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	result, err := d.EnrichByEmail(ctx, email)
	if err != nil {
		return err
	}

	if len(result.Sources) == 0 {
		// Nothing found anywhere; still make sure the lead exists.
		fields := crm.Fields{
			fieldEmail:    email,
			fieldLastName: fallbackLastName(email),
		}
		leadID, err := d.CRM.UpsertLeadByEmail(ctx, email, fields)
		if err != nil {
			return err
		}
		slog.Default().With("component", "jobs").Info("No enrichment data found, created minimal lead",
			"email", email, "lead_id", leadID)
		return nil
	}

	fields := enrichmentLeadFields(result, email)
	leadID, err := d.CRM.UpsertLeadByEmail(ctx, email, fields)
	if err != nil {
		return err
	}

	note := enrichmentNote(result, d.now())
	if err := d.CRM.CreateNote(ctx, leadID, "Lead Enrichment", note); err != nil {
		return err
	}

	// Logo upload is pure decoration; never fail the handler over it.
	domain := enrich.DomainFromEmail(email)
	if result.Company != nil && result.Company.Domain != "" {
		domain = result.Company.Domain
	}
	if domain != "" && d.Brandfetch != nil {
		if logo := d.Brandfetch.FetchLogo(ctx, domain); logo != nil {
			if err := d.CRM.UploadLeadPhoto(ctx, leadID, logo, domain+"_logo.png"); err != nil {
				slog.Default().With("component", "jobs").Warn("Logo upload failed",
					"lead_id", leadID, "error", err)
			}
		}
	}

	d.notify(ctx, "Lead Enriched",
		fmt.Sprintf("%s\nSources: %s\nLead: %s", email, strings.Join(result.Sources, ", "), leadID),
		"info")
	return nil
}

// EnrichByEmail runs the enrichment fan-out: contact and company lookups
// plus a website scrape analyzed by the LLM. Personal mail domains skip
// enrichment entirely. Sub-step failures are collected; when every sub-step
// fails the aggregate is returned as an error (transient wins so the job
// retries), otherwise partial data is kept.
func (d *Deps) EnrichByEmail(ctx context.Context, email string) (*schemas.EnrichmentResult, error) {
	log := slog.Default().With("component", "jobs", "email", email)
	result := &schemas.EnrichmentResult{}

	domain := enrich.DomainFromEmail(email)
	if domain == "" {
		return result, nil
	}
	if enrich.IsPersonalDomain(domain) {
		log.Info("Skipping enrichment for personal email domain", "domain", domain)
		return result, nil
	}

	var failures []error
	attempted := 0

	if d.Apollo != nil {
		attempted++
		person, err := d.Apollo.EnrichPerson(ctx, email)
		switch {
		case err != nil:
			log.Warn("Person enrichment failed", "error", err)
			failures = append(failures, err)
		case person != nil:
			result.Person = person
			result.Sources = append(result.Sources, "contact_api_person")
		}

		attempted++
		company, err := d.Apollo.EnrichCompany(ctx, domain)
		switch {
		case err != nil:
			log.Warn("Company enrichment failed", "error", err)
			failures = append(failures, err)
		case company != nil:
			if company.Domain == "" {
				company.Domain = domain
			}
			result.Company = company
			result.Sources = append(result.Sources, "contact_api_company")
		}
	}

	if d.Scraper != nil && d.LLM != nil {
		attempted++
		website, err := d.websiteIntel(ctx, domain)
		switch {
		case err != nil:
			log.Warn("Website analysis failed", "error", err)
			failures = append(failures, err)
		case website != nil:
			result.Website = website
			result.Sources = append(result.Sources, "website")
		}
	}

	if attempted > 0 && len(failures) == attempted {
		for _, err := range failures {
			if pipeline.IsTransient(err) {
				return nil, err
			}
		}
		return nil, pipeline.Permanent("all enrichment sub-steps failed", failures[0])
	}

	log.Info("Enrichment complete", "sources", len(result.Sources))
	return result, nil
}

// websiteIntel scrapes the company site and has the LLM turn the pages
// into sales intelligence.
func (d *Deps) websiteIntel(ctx context.Context, domain string) (*schemas.WebsiteIntel, error) {
	pages, err := d.Scraper.ScrapeSite(ctx, "https://"+domain)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, nil
	}

	var intel schemas.WebsiteIntel
	system, user := websiteIntelPrompts(scraper.Combine(pages))
	if err := d.LLM.Extract(ctx, system, user, schemas.WebsiteIntelSchema(), &intel); err != nil {
		return nil, err
	}
	return &intel, nil
}

// fallbackLastName derives a last name from the email domain so a minimal
// lead still satisfies the CRM's required field.
func fallbackLastName(email string) string {
	domain := enrich.DomainFromEmail(email)
	if domain == "" {
		return "Lead"
	}
	name, _, _ := strings.Cut(domain, ".")
	if name == "" {
		return "Lead"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// enrichmentLeadFields maps the fan-out result to lead fields, suitable
// for both create and update.
func enrichmentLeadFields(result *schemas.EnrichmentResult, email string) crm.Fields {
	fields := crm.Fields{fieldEmail: email}

	if person := result.Person; person != nil {
		setIf(fields, fieldFirstName, person.FirstName)
		setIf(fields, fieldLastName, person.LastName)
		setIf(fields, fieldJobTitle, person.Title)
		setIf(fields, fieldSeniority, person.Seniority)
		setIf(fields, fieldDepartment, person.Department)
		setIf(fields, fieldLinkedIn, person.LinkedInURL)
		if len(person.PhoneNumbers) > 0 {
			setIf(fields, fieldEnrichedPhone, person.PhoneNumbers[0])
		}
	}

	if company := result.Company; company != nil {
		setIf(fields, fieldCompany, company.Name)
		setIf(fields, fieldCompanySize, company.EmployeeCount)
		setIf(fields, fieldCompanyRevenue, company.Revenue)
		setIf(fields, fieldCompanyIndustry, company.Industry)
		setIf(fields, fieldCompanyFoundedYear, company.FoundedYear)
		setIf(fields, fieldFundingStage, company.FundingStage)
		setIf(fields, fieldFundingTotal, company.FundingTotal)
		if len(company.Technologies) > 0 {
			techs := company.Technologies
			if len(techs) > 10 {
				techs = techs[:10]
			}
			fields[fieldTechStack] = strings.Join(techs, ", ")
		}
	}

	if _, ok := fields[fieldLastName]; !ok {
		fields[fieldLastName] = fallbackLastName(email)
	}
	return fields
}

// enrichmentNote renders the fan-out result as the research note attached
// to the lead.
func enrichmentNote(result *schemas.EnrichmentResult, now time.Time) string {
	var lines []string
	lines = append(lines, "LEAD ENRICHMENT - "+now.UTC().Format("Jan 02, 2006 15:04 UTC"), "")

	if person := result.Person; person != nil {
		lines = append(lines, "PERSON INTEL")
		add := func(label, value string) {
			if value != "" {
				lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
			}
		}
		add("Job title", person.Title)
		add("Seniority", person.Seniority)
		add("Department", person.Department)
		add("LinkedIn", person.LinkedInURL)
		if len(person.PhoneNumbers) > 0 {
			add("Phone", person.PhoneNumbers[0])
		}
		lines = append(lines, "")
	}

	if company := result.Company; company != nil {
		lines = append(lines, "COMPANY INTEL")
		add := func(label, value string) {
			if value != "" {
				lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
			}
		}
		add("Employees", company.EmployeeCount)
		add("Revenue", company.Revenue)
		add("Industry", company.Industry)
		add("Founded", company.FoundedYear)
		add("Funding", company.FundingStage)
		add("Total raised", company.FundingTotal)
		if len(company.Technologies) > 0 {
			techs := company.Technologies
			if len(techs) > 8 {
				techs = techs[:8]
			}
			add("Tech stack", strings.Join(techs, ", "))
		}
		lines = append(lines, "")
	}

	if web := result.Website; web != nil {
		lines = append(lines, "WEBSITE RESEARCH")
		section := func(label, value string) {
			if value != "" {
				lines = append(lines, label+":", value, "")
			}
		}
		section("What they do", web.ValueProposition)
		section("Who they sell to", web.TargetMarket)
		section("Products and services", web.ProductsServices)
		section("Pricing", web.PricingModel)
		section("What's new", web.RecentNews)
		section("Growth signals", web.GrowthSignals)
		section("Their customers' pain points", web.KeyPainPoints)
		section("Competitors they mention", web.CompetitorsMentioned)
		section("How to approach the demo", web.SalesInsights)
	}

	lines = append(lines, "Enriched by: "+strings.Join(result.Sources, ", "))
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
