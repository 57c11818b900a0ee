package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Quota selects which platform-side rate bucket a request counts against.
// List endpoints and statistics endpoints have separate quotas.
type Quota int

const (
	QuotaList Quota = iota
	QuotaStats
)

const (
	defaultPageSize   = 100
	maxThrottleWait   = 60 * time.Second
	defaultMaxRetries = 3
)

type Config struct {
	BaseURL     string
	APIKey      string
	ListDelay   time.Duration
	StatsDelay  time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	HTTPClient  *http.Client
}

// Client issues HTTP requests against the outreach platform, enforcing a
// minimum inter-call delay per quota and retrying throttled calls with
// exponential backoff.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	listLimiter  *rate.Limiter
	statsLimiter *rate.Limiter
	maxRetries   int
	backoffBase  time.Duration
	logger       zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		http:         httpClient,
		listLimiter:  rate.NewLimiter(rate.Every(cfg.ListDelay), 1),
		statsLimiter: rate.NewLimiter(rate.Every(cfg.StatsDelay), 1),
		maxRetries:   maxRetries,
		backoffBase:  backoffBase,
		logger:       logger.With().Str("component", "platform-client").Logger(),
	}
}

// RequestOptions tune a single call.
type RequestOptions struct {
	Quota         Quota
	Query         url.Values
	AllowNotFound bool // 404 means "no data", not an error
	Retries       int  // 0 uses the client default
}

// Request issues one rate-limited GET. It returns (nil, nil) on an allowed
// 404. Throttled (429) and transient (5xx, network) failures are retried;
// on exhaustion the last error is returned so the caller can skip the unit
// of work without aborting the run.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	limiter := c.listLimiter
	if opts.Quota == QuotaStats {
		limiter = c.statsLimiter
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = c.maxRetries
	}

	reqURL := c.baseURL + endpoint
	if len(opts.Query) > 0 {
		reqURL += "?" + opts.Query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryIn, err := c.do(ctx, reqURL, opts)
		if err == nil {
			return body, nil
		}
		if retryIn < 0 {
			return nil, err // not retryable
		}
		lastErr = err

		if retryIn == 0 {
			retryIn = c.backoffBase * time.Duration(attempt)
			if retryIn > maxThrottleWait {
				retryIn = maxThrottleWait
			}
		}
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).
			Dur("retry_in", retryIn).Msg("Platform request failed, will retry")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryIn):
		}
	}

	return nil, errors.Wrapf(lastErr, "platform request %s exhausted %d retries", endpoint, retries)
}

// do performs a single attempt. retryIn < 0 means the error is permanent;
// retryIn == 0 means retry after default backoff; retryIn > 0 is the wait
// the platform asked for.
func (c *Client) do(ctx context.Context, reqURL string, opts RequestOptions) (json.RawMessage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, -1, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err // network blip, retryable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && opts.AllowNotFound:
		return nil, -1, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryIn := time.Duration(0)
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, parseErr := strconv.Atoi(after); parseErr == nil {
				retryIn = time.Duration(secs) * time.Second
				if retryIn > maxThrottleWait {
					retryIn = maxThrottleWait
				}
			}
		}
		return nil, retryIn, errors.New("platform rate limit exceeded")
	case resp.StatusCode >= 500:
		return nil, 0, errors.Errorf("platform returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, -1, errors.Errorf("platform returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to read platform response")
	}
	return body, -1, err
}

type pagedResponse struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// listPages walks offset/limit pages until a short page.
func (c *Client) listPages(ctx context.Context, endpoint string, quota Quota, collect func(json.RawMessage) error) error {
	offset := 0
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(defaultPageSize))
		query.Set("offset", strconv.Itoa(offset))

		raw, err := c.Request(ctx, endpoint, RequestOptions{Quota: quota, Query: query})
		if err != nil {
			return err
		}
		if raw == nil {
			return nil
		}

		var page pagedResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return errors.Wrapf(err, "failed to decode page at offset %d", offset)
		}
		for _, item := range page.Items {
			if err := collect(item); err != nil {
				return err
			}
		}

		if len(page.Items) < defaultPageSize {
			return nil
		}
		offset += len(page.Items)
	}
}

func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := c.listPages(ctx, "/accounts", QuotaList, func(item json.RawMessage) error {
		var acct Account
		if err := json.Unmarshal(item, &acct); err != nil {
			return err
		}
		accounts = append(accounts, acct)
		return nil
	})
	return accounts, err
}

func (c *Client) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	raw, err := c.Request(ctx, "/analytics/overview", RequestOptions{Quota: QuotaStats, AllowNotFound: true})
	if err != nil || raw == nil {
		return nil, err
	}
	var stats GlobalStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, errors.Wrap(err, "failed to decode global stats")
	}
	return &stats, nil
}

func (c *Client) ListCampaigns(ctx context.Context) ([]CampaignSummary, error) {
	var campaigns []CampaignSummary
	err := c.listPages(ctx, "/campaigns", QuotaList, func(item json.RawMessage) error {
		var summary CampaignSummary
		if err := json.Unmarshal(item, &summary); err != nil {
			return err
		}
		campaigns = append(campaigns, summary)
		return nil
	})
	return campaigns, err
}

func (c *Client) GetCampaign(ctx context.Context, externalID string) (*CampaignSummary, error) {
	raw, err := c.Request(ctx, "/campaigns/"+externalID, RequestOptions{Quota: QuotaList, AllowNotFound: true})
	if err != nil || raw == nil {
		return nil, err
	}
	var summary CampaignSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, errors.Wrapf(err, "failed to decode campaign %s", externalID)
	}
	return &summary, nil
}

func (c *Client) ListVariants(ctx context.Context, externalID string) ([]VariantPayload, error) {
	var variants []VariantPayload
	endpoint := fmt.Sprintf("/campaigns/%s/variants", externalID)
	err := c.listPages(ctx, endpoint, QuotaList, func(item json.RawMessage) error {
		var v VariantPayload
		if err := json.Unmarshal(item, &v); err != nil {
			return err
		}
		variants = append(variants, v)
		return nil
	})
	return variants, err
}

func (c *Client) ListLeads(ctx context.Context, externalID string) ([]LeadPayload, error) {
	var leads []LeadPayload
	endpoint := fmt.Sprintf("/campaigns/%s/leads", externalID)
	err := c.listPages(ctx, endpoint, QuotaList, func(item json.RawMessage) error {
		var lead LeadPayload
		if err := json.Unmarshal(item, &lead); err != nil {
			return err
		}
		leads = append(leads, lead)
		return nil
	})
	return leads, err
}

func (c *Client) ListEvents(ctx context.Context, externalID string) ([]EventPayload, error) {
	var events []EventPayload
	endpoint := fmt.Sprintf("/campaigns/%s/events", externalID)
	err := c.listPages(ctx, endpoint, QuotaStats, func(item json.RawMessage) error {
		var ev EventPayload
		if err := json.Unmarshal(item, &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}
