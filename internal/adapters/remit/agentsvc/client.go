package agentsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridian-rcm/platform/internal/adapters/remit"
)

// Client implements the agent service contracts against the AI agent
// gateway. Each call returns the service's verdict and its confidence
// score; a failed call is reported as an error, never as substitute
// data.
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Config holds configuration for the agent gateway client
type Config struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8090/api/v1",
		Timeout:       60 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// New creates a new agent gateway client
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultConfig().RetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
	}
}

// Verify checks coverage for a patient and procedure
func (c *Client) Verify(ctx context.Context, req remit.EligibilityRequest) (remit.EligibilityResult, float64, error) {
	var resp eligibilityResponse
	if err := c.post(ctx, "/eligibility/verify", req, &resp); err != nil {
		return remit.EligibilityResult{}, 0, fmt.Errorf("eligibility verification failed: %w", err)
	}

	return remit.EligibilityResult{
		Covered:       resp.Covered,
		PARequired:    resp.PARequired,
		PlanName:      resp.PlanName,
		GroupNumber:   resp.GroupNumber,
		DenialReason:  resp.DenialReason,
		PayerTraceRef: resp.TraceRef,
	}, resp.Confidence, nil
}

// Summarize condenses the clinical record into triage signals
func (c *Client) Summarize(ctx context.Context, req remit.SummaryRequest) (remit.ClinicalSummary, float64, error) {
	var resp summaryResponse
	if err := c.post(ctx, "/clinical/summarize", req, &resp); err != nil {
		return remit.ClinicalSummary{}, 0, fmt.Errorf("clinical summarization failed: %w", err)
	}

	return remit.ClinicalSummary{
		Summary:                     resp.Summary,
		PainLevel:                   resp.PainLevel,
		ProgressionRisk:             resp.ProgressionRisk,
		ConservativeTreatmentMonths: resp.ConservativeTreatmentMonths,
	}, resp.Confidence, nil
}

// SuggestCodes proposes procedure and diagnosis codes
func (c *Client) SuggestCodes(ctx context.Context, req remit.CodingRequest) (remit.CodingResult, float64, error) {
	var resp codingResponse
	if err := c.post(ctx, "/coding/suggest", req, &resp); err != nil {
		return remit.CodingResult{}, 0, fmt.Errorf("code suggestion failed: %w", err)
	}

	return remit.CodingResult{
		ProcedureCode:  resp.ProcedureCode,
		ProcedureName:  resp.ProcedureName,
		DiagnosisCodes: resp.DiagnosisCodes,
	}, resp.Confidence, nil
}

// Health checks agent gateway availability
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent gateway unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// post performs a JSON POST with retry on server errors
func (c *Client) post(ctx context.Context, path string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", c.baseURL+path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, raw)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, method, url string, payload []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Don't retry on client errors (4xx)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return resp, nil
		}

		// Retry on server errors (5xx)
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// API response types (mapped from the agent gateway)

type eligibilityResponse struct {
	Covered      bool    `json:"covered"`
	PARequired   bool    `json:"pa_required"`
	PlanName     string  `json:"plan_name,omitempty"`
	GroupNumber  string  `json:"group_number,omitempty"`
	DenialReason string  `json:"denial_reason,omitempty"`
	TraceRef     string  `json:"trace_ref,omitempty"`
	Confidence   float64 `json:"confidence"`
}

type summaryResponse struct {
	Summary                     string  `json:"summary"`
	PainLevel                   int     `json:"pain_level"`
	ProgressionRisk             bool    `json:"progression_risk"`
	ConservativeTreatmentMonths int     `json:"conservative_treatment_months"`
	Confidence                  float64 `json:"confidence"`
}

type codingResponse struct {
	ProcedureCode  string   `json:"procedure_code"`
	ProcedureName  string   `json:"procedure_name,omitempty"`
	DiagnosisCodes []string `json:"diagnosis_codes,omitempty"`
	Confidence     float64  `json:"confidence"`
}

// Interface checks
var (
	_ remit.EligibilityVerifier = (*Client)(nil)
	_ remit.ClinicalSummarizer  = (*Client)(nil)
	_ remit.CodingService       = (*Client)(nil)
)
