package searchconsole

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

var window = types.DateRange{
	Start: time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
}

type queryBody struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	RowLimit   int64    `json:"rowLimit"`
	StartRow   int64    `json:"startRow"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "sc-domain:example.com", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC) }
	return c
}

func TestPullMetrics_Paginates(t *testing.T) {
	pages := [][]map[string]any{
		{
			{"keys": []string{"https://example.com/a/"}, "clicks": 50, "impressions": 5000, "ctr": 0.01, "position": 7.0},
			{"keys": []string{"https://example.com/b/"}, "clicks": 3, "impressions": 200, "ctr": 0.015, "position": 12.4},
		},
		{
			{"keys": []string{"https://example.com/c/"}, "clicks": 0, "impressions": 40, "ctr": 0, "position": 31.0},
		},
	}

	var requests []queryBody
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/searchAnalytics/query"), r.URL.Path)

		var body queryBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		page := pages[len(requests)-1]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": page})
	})
	c.rowLimit = 2

	snapshots, err := c.PullMetrics(context.Background(), window)
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, "2026-09-14", requests[0].StartDate)
	assert.Equal(t, "2026-10-12", requests[0].EndDate)
	assert.Equal(t, []string{"page"}, requests[0].Dimensions)
	assert.Equal(t, int64(2), requests[1].StartRow)

	require.Len(t, snapshots, 3)
	assert.Equal(t, "https://example.com/a/", snapshots[0].URL)
	assert.Equal(t, int64(5000), snapshots[0].Impressions)
	assert.Equal(t, int64(50), snapshots[0].Clicks)
	assert.Equal(t, 7.0, snapshots[0].Position)
	assert.Equal(t, window.Start, snapshots[0].PeriodStart)
	assert.Equal(t, 2026, snapshots[2].IngestedAt.Year())
}

func TestPullMetrics_SkipsInvalidRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"rows": [
			{"keys": ["https://example.com/a/"], "clicks": 1, "impressions": 100, "position": 3},
			{"keys": ["https://example.com/bad/"], "clicks": 1, "impressions": 100, "position": 0},
			{"keys": [], "clicks": 1, "impressions": 100, "position": 2}
		]}`)
	})

	snapshots, err := c.PullMetrics(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "https://example.com/a/", snapshots[0].URL)
}

func TestPullMetrics_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusUnauthorized, func(t *testing.T, err error) {
			var authErr *AuthenticationError
			assert.True(t, errors.As(err, &authErr))
		}},
		{http.StatusForbidden, func(t *testing.T, err error) {
			var authErr *AuthenticationError
			assert.True(t, errors.As(err, &authErr))
		}},
		{http.StatusTooManyRequests, func(t *testing.T, err error) {
			var rlErr *RateLimitError
			assert.True(t, errors.As(err, &rlErr))
		}},
		{http.StatusBadRequest, func(t *testing.T, err error) {
			var authErr *AuthenticationError
			assert.False(t, errors.As(err, &authErr))
			assert.Contains(t, err.Error(), "search analytics query failed")
		}},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprintf(w, `{"error": {"code": %d, "message": "nope"}}`, tt.status)
			})
			_, err := c.PullMetrics(context.Background(), window)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestNewClient_RequiresSite(t *testing.T) {
	_, err := NewClient(context.Background(), "", nil, option.WithoutAuthentication())
	assert.Error(t, err)
}

func TestCredentials(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	installed := write("client.json", `{"installed": {"client_id": "id", "client_secret": "secret",
		"auth_uri": "https://accounts.google.com/o/oauth2/auth", "token_uri": "https://oauth2.googleapis.com/token",
		"redirect_uris": ["http://localhost"]}}`)
	token := write("token.json", `{"access_token": "a", "refresh_token": "r", "token_type": "Bearer"}`)

	t.Run("installed app with token", func(t *testing.T) {
		opt, err := Credentials(context.Background(), installed, token)
		require.NoError(t, err)
		assert.NotNil(t, opt)
	})

	t.Run("installed app without token", func(t *testing.T) {
		_, err := Credentials(context.Background(), installed, "")
		var authErr *AuthenticationError
		assert.True(t, errors.As(err, &authErr))
	})

	t.Run("not json", func(t *testing.T) {
		_, err := Credentials(context.Background(), write("bad.json", "nope"), "")
		var authErr *AuthenticationError
		assert.True(t, errors.As(err, &authErr))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Credentials(context.Background(), filepath.Join(dir, "missing.json"), "")
		assert.ErrorContains(t, err, "failed to read credentials file")
	})
}
