package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	if cfg.ListDelay == 0 {
		cfg.ListDelay = time.Millisecond
	}
	if cfg.StatsDelay == 0 {
		cfg.StatsDelay = time.Millisecond
	}
	return NewClient(cfg, zerolog.Nop())
}

func TestRequestEnforcesInterCallDelay(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	delay := 50 * time.Millisecond
	client := newTestClient(t, server.URL, Config{ListDelay: delay})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Request(context.Background(), "/accounts", RequestOptions{Quota: QuotaList})
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	// First call is immediate, each subsequent call waits out the delay.
	assert.GreaterOrEqual(t, elapsed, 2*delay)
}

func TestRequestSendsAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Config{})
	_, err := client.Request(context.Background(), "/accounts", RequestOptions{})
	require.NoError(t, err)
}

func TestRequestHonorsRetryAfterOnThrottle(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":"c1"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Config{})

	start := time.Now()
	body, err := client.Request(context.Background(), "/campaigns/c1", RequestOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1"}`, string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "must wait out Retry-After before retrying")
}

func TestRequestRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Config{BackoffBase: time.Millisecond})
	_, err := client.Request(context.Background(), "/accounts", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRequestExhaustsRetries(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Config{MaxRetries: 2, BackoffBase: time.Millisecond})
	_, err := client.Request(context.Background(), "/accounts", RequestOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRequestDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Config{})
	_, err := client.Request(context.Background(), "/accounts", RequestOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "4xx responses are permanent")
}

func TestRequestAllowedNotFoundYieldsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Config{})

	body, err := client.Request(context.Background(), "/campaigns/gone", RequestOptions{AllowNotFound: true})
	require.NoError(t, err)
	assert.Nil(t, body)

	campaign, err := client.GetCampaign(context.Background(), "gone")
	require.NoError(t, err)
	assert.Nil(t, campaign)
}

func TestListPagesWalksUntilShortPage(t *testing.T) {
	const total = 140
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)
		limit := 0
		fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)

		var items []json.RawMessage
		for i := offset; i < total && i < offset+limit; i++ {
			items = append(items, json.RawMessage(fmt.Sprintf(`{"id":"acct-%d","email":"a%d@x.test"}`, i, i)))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"items": items, "total": total})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Config{})
	accounts, err := client.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, total)
	assert.Equal(t, "acct-0", accounts[0].ID)
	assert.Equal(t, "acct-139", accounts[total-1].ID)
}
