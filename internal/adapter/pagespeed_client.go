// Package adapter contains clients for external audit providers. The
// PageSpeed client is the only implementation; it hides the provider's rate
// limits and response shape behind an AuditResult.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/config"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
	"golang.org/x/time/rate"
)

// AuditResult is the provider-agnostic outcome of one audit. Category scores
// are the provider's raw 0-1 ratios; mapping to 0-100 integers happens in the
// orchestrator. A metric absent from the payload is reported as 0.
type AuditResult struct {
	PerformanceScore       float64
	AccessibilityScore     float64
	BestPracticesScore     float64
	SEOScore               float64
	FirstContentfulPaint   float64
	LargestContentfulPaint float64
	CumulativeLayoutShift  float64
	TotalBlockingTime      float64
	TimeToInteractive      float64
	SpeedIndex             float64
	TotalRequests          int
	TotalBytes             int64
	Raw                    json.RawMessage
}

// Auditor runs a performance audit against a URL
type Auditor interface {
	Audit(ctx context.Context, targetURL string, device types.Device) (*AuditResult, error)
}

// PageSpeedClient calls the Google PageSpeed Insights API. Outbound requests
// are throttled with a token bucket so the client never exceeds the
// provider's quota even when many workers share it.
type PageSpeedClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewPageSpeedClient creates a new PageSpeed API client
func NewPageSpeedClient(cfg *config.ProviderConfig, logger *logging.Logger) *PageSpeedClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}

	return &PageSpeedClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.WithField("component", "pagespeed_client"),
	}
}

// psiResponse mirrors the slice of the PageSpeed payload we map from
type psiResponse struct {
	LighthouseResult *lighthouseResult `json:"lighthouseResult"`
	Error            *psiError         `json:"error"`
}

type psiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type lighthouseResult struct {
	Categories map[string]psiCategory `json:"categories"`
	Audits     map[string]psiAudit    `json:"audits"`
}

type psiCategory struct {
	Score *float64 `json:"score"`
}

type psiAudit struct {
	NumericValue *float64 `json:"numericValue"`
	Details      *psiAuditDetails
}

type psiAuditDetails struct {
	Items []json.RawMessage `json:"items"`
}

// UnmarshalJSON keeps audit parsing tolerant: a details block of an
// unexpected shape is ignored rather than failing the whole payload.
func (a *psiAudit) UnmarshalJSON(data []byte) error {
	var raw struct {
		NumericValue *float64        `json:"numericValue"`
		Details      json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.NumericValue = raw.NumericValue
	if len(raw.Details) > 0 {
		var details psiAuditDetails
		if err := json.Unmarshal(raw.Details, &details); err == nil {
			a.Details = &details
		}
	}
	return nil
}

// Audit runs a PageSpeed audit for the given URL and device profile. The call
// blocks on the rate limiter before going out; context cancellation while
// waiting surfaces as a transport error.
func (c *PageSpeedClient) Audit(ctx context.Context, targetURL string, device types.Device) (*AuditResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.NewProviderTransportError(err)
	}

	reqURL, err := c.buildURL(targetURL, device)
	if err != nil {
		return nil, errors.NewInternalError("failed to build provider URL", err)
	}

	start := time.Now()
	c.logger.WithField("url", targetURL).WithField("device", string(device)).Debug("Requesting audit")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to build provider request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("url", targetURL).Warn("Audit request failed")
		return nil, errors.NewProviderTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewProviderTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp.StatusCode, body)
	}

	result, err := parseAuditResponse(body)
	if err != nil {
		return nil, err
	}

	c.logger.WithField("url", targetURL).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("Audit completed")

	return result, nil
}

// buildURL assembles the provider request URL with all audit categories
func (c *PageSpeedClient) buildURL(targetURL string, device types.Device) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("url", targetURL)
	q.Set("strategy", string(device))
	q.Add("category", "performance")
	q.Add("category", "accessibility")
	q.Add("category", "best-practices")
	q.Add("category", "seo")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// classifyStatus maps a non-200 provider status to an error class. 429 and
// 5xx are transient; other 4xx mean the provider rejected this request and a
// retry cannot help.
func (c *PageSpeedClient) classifyStatus(statusCode int, body []byte) error {
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return errors.NewProviderUnavailableError(statusCode)
	}

	detail := fmt.Sprintf("status %d", statusCode)
	var payload psiResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil && payload.Error.Message != "" {
		detail = payload.Error.Message
	}

	return errors.NewProviderRejectedError(statusCode, detail)
}

// requiredCategories are the audit categories every response must carry; a
// payload without all four cannot produce a complete result.
var requiredCategories = []string{"performance", "accessibility", "best-practices", "seo"}

// parseAuditResponse maps the provider payload into an AuditResult
func parseAuditResponse(body []byte) (*AuditResult, error) {
	var payload psiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.NewMalformedResponseError("invalid JSON body")
	}

	lhr := payload.LighthouseResult
	if lhr == nil {
		return nil, errors.NewMalformedResponseError("missing lighthouseResult")
	}
	for _, name := range requiredCategories {
		if _, ok := lhr.Categories[name]; !ok {
			return nil, errors.NewMalformedResponseError(fmt.Sprintf("missing %q category", name))
		}
	}

	result := &AuditResult{
		PerformanceScore:       categoryScore(lhr, "performance"),
		AccessibilityScore:     categoryScore(lhr, "accessibility"),
		BestPracticesScore:     categoryScore(lhr, "best-practices"),
		SEOScore:               categoryScore(lhr, "seo"),
		FirstContentfulPaint:   auditValue(lhr, "first-contentful-paint"),
		LargestContentfulPaint: auditValue(lhr, "largest-contentful-paint"),
		CumulativeLayoutShift:  auditValue(lhr, "cumulative-layout-shift"),
		TotalBlockingTime:      auditValue(lhr, "total-blocking-time"),
		TimeToInteractive:      auditValue(lhr, "interactive"),
		SpeedIndex:             auditValue(lhr, "speed-index"),
		TotalBytes:             int64(auditValue(lhr, "total-byte-weight")),
		Raw:                    json.RawMessage(body),
	}

	if audit, ok := lhr.Audits["network-requests"]; ok && audit.Details != nil {
		result.TotalRequests = len(audit.Details.Items)
	}

	return result, nil
}

// categoryScore returns a category's 0-1 score. Presence is validated up
// front; a present-but-null score maps to 0.
func categoryScore(lhr *lighthouseResult, name string) float64 {
	if cat, ok := lhr.Categories[name]; ok && cat.Score != nil {
		return *cat.Score
	}
	return 0
}

// auditValue returns an audit's numericValue, 0 if absent
func auditValue(lhr *lighthouseResult, name string) float64 {
	if audit, ok := lhr.Audits[name]; ok && audit.NumericValue != nil {
		return *audit.NumericValue
	}
	return 0
}
