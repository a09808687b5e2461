package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSite is a minimal posts endpoint keyed by slug.
type fakeSite struct {
	mu      sync.Mutex
	posts   map[string]*post
	updates []map[string]any
	lookups int
}

func (f *fakeSite) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "editor" || pass != "app pass" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"rest_not_logged_in","message":"You are not currently logged in."}`))
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == postsPath:
			f.lookups++
			assert.Equal(t, "edit", r.URL.Query().Get("context"))
			result := []post{}
			if p, ok := f.posts[r.URL.Query().Get("slug")]; ok {
				result = append(result, *p)
			}
			_ = json.NewEncoder(w).Encode(result)

		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, postsPath+"/"):
			id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, postsPath+"/"))
			require.NoError(t, err)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.updates = append(f.updates, body)
			for _, p := range f.posts {
				if p.ID != id {
					continue
				}
				if title, ok := body["title"].(string); ok {
					p.Title = rendered{Raw: title, Rendered: title}
				}
				if content, ok := body["content"].(string); ok {
					p.Content = rendered{Raw: content, Rendered: content}
				}
				if meta, ok := body["meta"].(map[string]any); ok {
					if p.Meta == nil {
						p.Meta = map[string]any{}
					}
					for k, v := range meta {
						p.Meta[k] = v
					}
				}
				_ = json.NewEncoder(w).Encode(p)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"rest_post_invalid_id","message":"Invalid post ID."}`))

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func newTestClient(t *testing.T, site *fakeSite, rankMath bool) *Client {
	t.Helper()
	srv := httptest.NewServer(site.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		SiteURL:         srv.URL + "/",
		User:            "editor",
		AppPassword:     "app pass",
		UseRankMathMeta: rankMath,
		HTTPClient:      srv.Client(),
	}, nil)
	require.NoError(t, err)
	return c
}

func seededSite() *fakeSite {
	return &fakeSite{posts: map[string]*post{
		"best-hiking-boots": {
			ID:      42,
			Slug:    "best-hiking-boots",
			Title:   rendered{Rendered: "Best Hiking Boots &#8211; Tested"},
			Content: rendered{Raw: "<p>Boots.</p>", Rendered: "<p>Boots.</p>\n"},
			Meta:    map[string]any{rankMathMeta: "Best Hiking Boots (2026 Guide)"},
		},
	}}
}

func TestReadContent(t *testing.T) {
	tests := []struct {
		name     string
		rankMath bool
		kind     types.Kind
		want     string
	}{
		{"title from rendered HTML", false, types.KindTitle, "Best Hiking Boots – Tested"},
		{"title from rank math meta", true, types.KindTitle, "Best Hiking Boots (2026 Guide)"},
		{"raw body", false, types.KindStructure, "<p>Boots.</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, seededSite(), tt.rankMath)
			got, err := c.ReadContent(context.Background(), "https://example.com/gear/best-hiking-boots/", tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadContent_NotFound(t *testing.T) {
	c := newTestClient(t, seededSite(), false)
	_, err := c.ReadContent(context.Background(), "https://example.com/missing/", types.KindTitle)
	assert.True(t, errors.Is(err, ErrPostNotFound))
}

func TestWriteContent_RoundTrip(t *testing.T) {
	site := seededSite()
	c := newTestClient(t, site, false)
	ctx := context.Background()
	pageURL := "https://example.com/best-hiking-boots"

	require.NoError(t, c.WriteContent(ctx, pageURL, types.KindTitle, "12 Hiking Boots We Wore Out"))
	require.NoError(t, c.WriteContent(ctx, pageURL, types.KindStructure, "<p>Boots.</p><h2>FAQ</h2>"))

	title, err := c.ReadContent(ctx, pageURL, types.KindTitle)
	require.NoError(t, err)
	assert.Equal(t, "12 Hiking Boots We Wore Out", title)

	body, err := c.ReadContent(ctx, pageURL, types.KindStructure)
	require.NoError(t, err)
	assert.Equal(t, "<p>Boots.</p><h2>FAQ</h2>", body)

	require.Len(t, site.updates, 2)
	assert.Equal(t, "12 Hiking Boots We Wore Out", site.updates[0]["title"])
	assert.Equal(t, 3, site.lookups, "post id is cached after the first lookup")
}

func TestWriteContent_RankMathMeta(t *testing.T) {
	site := seededSite()
	c := newTestClient(t, site, true)

	err := c.WriteContent(context.Background(), "https://example.com/best-hiking-boots/", types.KindTitle, "New SEO Title")
	require.NoError(t, err)

	require.Len(t, site.updates, 1)
	assert.NotContains(t, site.updates[0], "title")
	assert.Equal(t, map[string]any{rankMathMeta: "New SEO Title"}, site.updates[0]["meta"])
}

func TestRankMathMeta_EmptyTitleRoundTrip(t *testing.T) {
	site := seededSite()
	site.posts["best-hiking-boots"].Meta[rankMathMeta] = ""
	c := newTestClient(t, site, true)
	ctx := context.Background()
	pageURL := "https://example.com/best-hiking-boots/"

	original, err := c.ReadContent(ctx, pageURL, types.KindTitle)
	require.NoError(t, err)
	assert.Empty(t, original, "post title is not mistaken for the SEO title")

	require.NoError(t, c.WriteContent(ctx, pageURL, types.KindTitle, "Best Hiking Boots, Tested on 400 Miles"))
	live, err := c.ReadContent(ctx, pageURL, types.KindTitle)
	require.NoError(t, err)
	assert.Equal(t, "Best Hiking Boots, Tested on 400 Miles", live)

	require.NoError(t, c.WriteContent(ctx, pageURL, types.KindTitle, original))
	restored, err := c.ReadContent(ctx, pageURL, types.KindTitle)
	require.NoError(t, err)
	assert.Empty(t, restored)

	require.Len(t, site.updates, 2)
	assert.Equal(t, map[string]any{rankMathMeta: ""}, site.updates[1]["meta"])
	assert.Equal(t, "Best Hiking Boots &#8211; Tested", site.posts["best-hiking-boots"].Title.Rendered)
}

func TestClient_AuthFailure(t *testing.T) {
	site := seededSite()
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	c, err := NewClient(Options{SiteURL: srv.URL, User: "editor", AppPassword: "wrong"}, nil)
	require.NoError(t, err)

	_, err = c.ReadContent(context.Background(), "https://example.com/best-hiking-boots/", types.KindTitle)
	var wpErr *Error
	require.True(t, errors.As(err, &wpErr))
	assert.Equal(t, http.StatusUnauthorized, wpErr.StatusCode)
	assert.Contains(t, wpErr.Error(), "rest_not_logged_in")
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{SiteURL: "not a url", User: "u", AppPassword: "p"}, nil)
	assert.Error(t, err)

	_, err = NewClient(Options{SiteURL: "https://example.com"}, nil)
	assert.Error(t, err)
}

func TestSlugFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://example.com/best-hiking-boots/", "best-hiking-boots", false},
		{"https://example.com/gear/boots?utm=x", "boots", false},
		{"https://example.com/", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := SlugFromURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
