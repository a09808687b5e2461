// Package wordpress reads and writes post titles and bodies through the WordPress REST API.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

const (
	postsPath    = "/wp-json/wp/v2/posts"
	rankMathMeta = "rank_math_title"
	userAgent    = "ctr-optimizer/1.0"
)

// Options configures a Client.
type Options struct {
	SiteURL     string
	User        string
	AppPassword string
	// UseRankMathMeta reads and writes the SEO title in the rank_math_title
	// meta field instead of the post title.
	UseRankMathMeta bool
	RequestsPerSec  float64
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Client implements experiment.ContentManager for one site.
type Client struct {
	base     string
	user     string
	password string
	rankMath bool
	http     *http.Client
	limiter  *rate.Limiter
	log      logrus.FieldLogger

	mu  sync.Mutex
	ids map[string]int
}

type rendered struct {
	Raw      string `json:"raw"`
	Rendered string `json:"rendered"`
}

type post struct {
	ID      int            `json:"id"`
	Slug    string         `json:"slug"`
	Link    string         `json:"link"`
	Title   rendered       `json:"title"`
	Content rendered       `json:"content"`
	Meta    map[string]any `json:"meta"`
}

// NewClient creates a REST client. Application passwords are sent with basic auth.
func NewClient(opts Options, log logrus.FieldLogger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.SiteURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &Error{URL: opts.SiteURL, Message: "invalid site URL", Cause: err}
	}
	if opts.User == "" || opts.AppPassword == "" {
		return nil, fmt.Errorf("wordpress user and application password are required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	if log == nil {
		log = observability.Discard()
	}

	return &Client{
		base:     base.String(),
		user:     opts.User,
		password: opts.AppPassword,
		rankMath: opts.UseRankMathMeta,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		ids:      make(map[string]int),
	}, nil
}

// ReadContent returns the live title (plain text) or the raw post body for a page.
// With UseRankMathMeta the title is the raw rank_math_title value, which may be empty.
func (c *Client) ReadContent(ctx context.Context, pageURL string, kind types.Kind) (string, error) {
	p, err := c.findPost(ctx, pageURL)
	if err != nil {
		return "", err
	}

	switch kind {
	case types.KindTitle:
		if c.rankMath {
			// An empty meta title means RankMath renders its title template.
			// It is returned as is so writing it back restores that.
			v, _ := p.Meta[rankMathMeta].(string)
			return v, nil
		}
		if p.Title.Raw != "" {
			return p.Title.Raw, nil
		}
		return plainText(p.Title.Rendered)
	case types.KindStructure:
		if p.Content.Raw != "" {
			return p.Content.Raw, nil
		}
		return p.Content.Rendered, nil
	default:
		return "", fmt.Errorf("unsupported content kind %q", kind)
	}
}

// WriteContent replaces the title or body of the post behind pageURL.
func (c *Client) WriteContent(ctx context.Context, pageURL string, kind types.Kind, value string) error {
	id, err := c.postID(ctx, pageURL)
	if err != nil {
		return err
	}

	body := map[string]any{}
	switch kind {
	case types.KindTitle:
		if c.rankMath {
			body["meta"] = map[string]string{rankMathMeta: value}
		} else {
			body["title"] = value
		}
	case types.KindStructure:
		body["content"] = value
	default:
		return fmt.Errorf("unsupported content kind %q", kind)
	}

	endpoint := fmt.Sprintf("%s%s/%d", c.base, postsPath, id)
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"url":     pageURL,
		"post_id": id,
		"kind":    kind,
	}).Info("updated post")
	return nil
}

func (c *Client) postID(ctx context.Context, pageURL string) (int, error) {
	c.mu.Lock()
	id, ok := c.ids[pageURL]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	p, err := c.findPost(ctx, pageURL)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (c *Client) findPost(ctx context.Context, pageURL string) (*post, error) {
	slug, err := SlugFromURL(pageURL)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("slug", slug)
	q.Set("status", "publish")
	q.Set("context", "edit")
	endpoint := c.base + postsPath + "?" + q.Encode()

	var posts []post
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &posts); err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, pageURL)
	}

	p := posts[0]
	c.mu.Lock()
	c.ids[pageURL] = p.ID
	c.mu.Unlock()
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{URL: endpoint, Message: "failed to create request", Cause: err}
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{URL: endpoint, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{URL: endpoint, Message: "failed to read response body", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{URL: endpoint, StatusCode: resp.StatusCode, Message: apiMessage(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{URL: endpoint, Message: "failed to decode response", Cause: err}
		}
	}
	return nil
}

// apiMessage extracts the message of a WordPress error body.
func apiMessage(data []byte) string {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return fmt.Sprintf("%s: %s", body.Code, body.Message)
	}
	return "unexpected response"
}

// SlugFromURL returns the last path segment of a permalink.
func SlugFromURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	slug := segments[len(segments)-1]
	if slug == "" {
		return "", fmt.Errorf("page URL %q has no slug", pageURL)
	}
	return slug, nil
}

func plainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse title HTML: %w", err)
	}
	return strings.TrimSpace(doc.Text()), nil
}
