// Package crm is the outbound client for the Zoho-shaped CRM: lead search
// and upsert, notes, tasks, and the lead photo endpoint, with a lazily
// refreshed OAuth token.
//
// Under dry-run every write becomes a structured log line returning a
// synthetic ok, and reads are skipped so end-to-end flows run without a
// valid token.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/store"
)

// leadsModule is the CRM module holding lead records.
const leadsModule = "Leads"

// maxPhotoBytes is the CRM's lead photo size limit.
const maxPhotoBytes = 10 << 20

// DryRunLeadID is the synthetic id returned by writes under dry-run.
const DryRunLeadID = "dry_run_lead_id"

// Fields is a CRM record payload keyed by API field name.
type Fields map[string]any

// Task is a CRM task attached to a lead.
type Task struct {
	Subject     string
	DueDate     string // YYYY-MM-DD
	Priority    string // High, Normal, Low
	Description string
}

// Client talks to the CRM REST API.
type Client struct {
	httpClient *http.Client
	apiBase    string
	tokens     *TokenManager
	dryRun     bool
	logger     *slog.Logger
}

// Config configures the CRM client.
type Config struct {
	Datacenter   string
	ClientID     string
	ClientSecret string
	RefreshToken string
	DryRun       bool
	Timeout      time.Duration
}

// NewClient builds a client for the configured datacenter.
func NewClient(kv *store.Store, cfg Config) (*Client, error) {
	tokenURL, apiBase, err := Endpoints(cfg.Datacenter)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		httpClient: httpClient,
		apiBase:    apiBase,
		tokens: NewTokenManager(kv, httpClient, TokenConfig{
			TokenURL:     tokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RefreshToken: cfg.RefreshToken,
		}),
		dryRun: cfg.DryRun,
		logger: slog.Default().With("component", "crm-client"),
	}, nil
}

// NewClientWithEndpoints builds a client against explicit URLs.
// Used by tests with httptest servers.
func NewClientWithEndpoints(kv *store.Store, httpClient *http.Client, apiBase, tokenURL string, cfg Config) *Client {
	return &Client{
		httpClient: httpClient,
		apiBase:    apiBase,
		tokens: NewTokenManager(kv, httpClient, TokenConfig{
			TokenURL:     tokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RefreshToken: cfg.RefreshToken,
		}),
		dryRun: cfg.DryRun,
		logger: slog.Default().With("component", "crm-client"),
	}
}

// FindLeadByEmail returns the first lead matching email, or nil when none
// match. Skipped under dry-run.
func (c *Client) FindLeadByEmail(ctx context.Context, email string) (Fields, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN crm find_lead_by_email skipped", "email", email)
		return nil, nil
	}
	criteria := url.QueryEscape(fmt.Sprintf("(Email:equals:%s)", email))
	return c.searchOne(ctx, criteria)
}

// FindLeadByCompany returns the first lead whose Company matches exactly.
func (c *Client) FindLeadByCompany(ctx context.Context, company string) (Fields, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN crm find_lead_by_company skipped", "company", company)
		return nil, nil
	}
	criteria := url.QueryEscape(fmt.Sprintf("(Company:equals:%q)", company))
	return c.searchOne(ctx, criteria)
}

func (c *Client) searchOne(ctx context.Context, criteria string) (Fields, error) {
	var body struct {
		Data []Fields `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/%s/search?criteria=%s", leadsModule, criteria), nil, &body)
	if err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return body.Data[0], nil
}

// CreateLead inserts a new lead and returns its id.
func (c *Client) CreateLead(ctx context.Context, fields Fields) (string, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN crm create_lead", "fields", fieldNames(fields))
		return DryRunLeadID, nil
	}

	var resp recordResponse
	if err := c.doJSON(ctx, http.MethodPost, "/"+leadsModule, Fields{"data": []Fields{fields}}, &resp); err != nil {
		return "", err
	}
	id := resp.firstID()
	if id == "" {
		return "", pipeline.Permanentf("create lead response missing id")
	}
	c.logger.Info("CRM lead created", "lead_id", id)
	return id, nil
}

// UpdateLead writes fields onto an existing lead.
func (c *Client) UpdateLead(ctx context.Context, leadID string, fields Fields) error {
	if c.dryRun {
		c.logger.Info("DRY_RUN crm update_lead", "lead_id", leadID, "fields", fieldNames(fields))
		return nil
	}

	var resp recordResponse
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/%s/%s", leadsModule, leadID), Fields{"data": []Fields{fields}}, &resp); err != nil {
		return err
	}
	c.logger.Info("CRM lead updated", "lead_id", leadID, "fields", fieldNames(fields))
	return nil
}

// UpsertLeadByEmail updates the lead found by email or creates a new one.
func (c *Client) UpsertLeadByEmail(ctx context.Context, email string, fields Fields) (string, error) {
	existing, err := c.FindLeadByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if id := leadID(existing); id != "" {
		if err := c.UpdateLead(ctx, id, fields); err != nil {
			return "", err
		}
		return id, nil
	}
	if c.dryRun {
		c.logger.Info("DRY_RUN crm upsert_lead_by_email create", "email", email, "fields", fieldNames(fields))
		return DryRunLeadID, nil
	}
	return c.CreateLead(ctx, fields)
}

// UpsertLeadByCompany updates the lead found by company name or creates a
// new one. When updating, an existing Email is preserved so later signals
// from other contacts of the same company do not overwrite the primary
// contact.
func (c *Client) UpsertLeadByCompany(ctx context.Context, company string, fields Fields) (string, error) {
	existing, err := c.FindLeadByCompany(ctx, company)
	if err != nil {
		return "", err
	}
	if id := leadID(existing); id != "" {
		if existingEmail, _ := existing["Email"].(string); existingEmail != "" {
			if _, hasNew := fields["Email"]; hasNew {
				trimmed := make(Fields, len(fields))
				for k, v := range fields {
					if k != "Email" {
						trimmed[k] = v
					}
				}
				fields = trimmed
			}
		}
		if err := c.UpdateLead(ctx, id, fields); err != nil {
			return "", err
		}
		return id, nil
	}
	if c.dryRun {
		c.logger.Info("DRY_RUN crm upsert_lead_by_company create", "company", company, "fields", fieldNames(fields))
		return DryRunLeadID, nil
	}
	return c.CreateLead(ctx, fields)
}

// CreateNote attaches a note to a lead.
func (c *Client) CreateNote(ctx context.Context, leadID, title, content string) error {
	if c.dryRun {
		c.logger.Info("DRY_RUN crm create_note", "lead_id", leadID, "title", title, "content_len", len(content))
		return nil
	}
	payload := Fields{
		"Note_Title":   title,
		"Note_Content": content,
		"Parent_Id":    leadID,
		"se_module":    leadsModule,
	}
	return c.doJSON(ctx, http.MethodPost, "/Notes", Fields{"data": []Fields{payload}}, nil)
}

// CreateTask creates a task related to a lead.
func (c *Client) CreateTask(ctx context.Context, leadID string, task Task) error {
	if c.dryRun {
		c.logger.Info("DRY_RUN crm create_task", "lead_id", leadID, "subject", task.Subject, "due", task.DueDate)
		return nil
	}
	payload := Fields{
		"Subject":     task.Subject,
		"Due_Date":    task.DueDate,
		"What_Id":     leadID,
		"se_module":   leadsModule,
		"Description": task.Description,
		"Status":      "Not Started",
	}
	if task.Priority != "" {
		payload["Priority"] = task.Priority
	}
	return c.doJSON(ctx, http.MethodPost, "/Tasks", Fields{"data": []Fields{payload}}, nil)
}

// UploadLeadPhoto attaches an image to the lead record.
func (c *Client) UploadLeadPhoto(ctx context.Context, leadID string, image []byte, filename string) error {
	if c.dryRun {
		c.logger.Info("DRY_RUN crm upload_lead_photo", "lead_id", leadID, "size", len(image))
		return nil
	}
	if len(image) > maxPhotoBytes {
		return pipeline.Permanentf("image too large (%d bytes), limit is 10 MB", len(image))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/photo", c.apiBase, leadsModule, leadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.Transient("uploading lead photo", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pipeline.ClassifyHTTPStatus(resp.StatusCode, string(detail))
	}
	c.logger.Info("CRM lead photo uploaded", "lead_id", leadID, "size", len(image))
	return nil
}

// doJSON performs one authenticated JSON request, invalidating the cached
// token once on 401 and retrying. Failures map to the error taxonomy.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	for attempt := 0; ; attempt++ {
		status, body, err := c.roundTrip(ctx, method, path, payload)
		if err != nil {
			return pipeline.Transient("crm request", err)
		}

		if status == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("CRM returned 401, invalidating cached token", "path", path)
			c.tokens.Invalidate(ctx)
			continue
		}
		if status == http.StatusUnauthorized {
			// A second 401 right after a fresh token points at a refresh
			// race across processes; retrying later resolves it.
			return pipeline.Transientf("crm auth failed twice on %s", path)
		}
		if status >= 400 {
			return pipeline.ClassifyHTTPStatus(status, fmt.Sprintf("%s %s: %s", method, path, truncate(body, 256)))
		}

		// Search endpoints answer 204 with no body when nothing matches.
		if out == nil || status == http.StatusNoContent || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return pipeline.Permanentf("decoding crm response from %s: %v", path, err)
		}
		return nil
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("getting access token: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// recordResponse is the common envelope of CRM write endpoints.
type recordResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Status  string `json:"status"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
	} `json:"data"`
}

func (r recordResponse) firstID() string {
	if len(r.Data) == 0 {
		return ""
	}
	return r.Data[0].Details.ID
}

func leadID(lead Fields) string {
	if lead == nil {
		return ""
	}
	switch v := lead["id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func fieldNames(fields Fields) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	return names
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
