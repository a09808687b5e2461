// Package searchconsole pulls per-page search metrics from Google Search Console.
package searchconsole

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sc "google.golang.org/api/searchconsole/v1"
)

// maxRowLimit is the largest page size the API accepts.
const maxRowLimit = 25000

// Client queries the Search Analytics API for one property.
type Client struct {
	svc      *sc.Service
	siteURL  string
	rowLimit int64
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewClient creates a client for siteURL (e.g. "sc-domain:example.com").
func NewClient(ctx context.Context, siteURL string, log logrus.FieldLogger, opts ...option.ClientOption) (*Client, error) {
	if siteURL == "" {
		return nil, fmt.Errorf("search console site URL is required")
	}
	svc, err := sc.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create search console service: %w", err)
	}
	if log == nil {
		log = observability.Discard()
	}
	return &Client{svc: svc, siteURL: siteURL, rowLimit: maxRowLimit, log: log, now: time.Now}, nil
}

// PullMetrics returns one snapshot per page for the date range, following pagination.
// Rows that fail validation are logged and dropped.
func (c *Client) PullMetrics(ctx context.Context, r types.DateRange) ([]types.PageMetricSnapshot, error) {
	ingestedAt := c.now()
	var snapshots []types.PageMetricSnapshot

	for startRow := int64(0); ; {
		req := &sc.SearchAnalyticsQueryRequest{
			StartDate:  r.Start.Format(types.DateLayout),
			EndDate:    r.End.Format(types.DateLayout),
			Dimensions: []string{"page"},
			Type:       "web",
			RowLimit:   c.rowLimit,
			StartRow:   startRow,
		}

		resp, err := c.svc.Searchanalytics.Query(c.siteURL, req).Context(ctx).Do()
		if err != nil {
			return nil, classify(err)
		}

		for _, row := range resp.Rows {
			if len(row.Keys) == 0 {
				continue
			}
			s := types.PageMetricSnapshot{
				URL:         row.Keys[0],
				PeriodStart: r.Start,
				PeriodEnd:   r.End,
				Impressions: int64(row.Impressions),
				Clicks:      int64(row.Clicks),
				Position:    row.Position,
				IngestedAt:  ingestedAt,
			}
			if err := s.Validate(); err != nil {
				c.log.WithError(err).Warn("skipping search console row")
				continue
			}
			snapshots = append(snapshots, s)
		}

		if int64(len(resp.Rows)) < c.rowLimit {
			break
		}
		startRow += int64(len(resp.Rows))
	}

	c.log.WithFields(logrus.Fields{
		"range": r.String(),
		"pages": len(snapshots),
	}).Info("pulled search console metrics")

	return snapshots, nil
}

// classify maps transport errors onto the run-level error types.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthenticationError{Message: gerr.Message, Cause: err}
		case http.StatusTooManyRequests:
			return &RateLimitError{Cause: err}
		}
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return &AuthenticationError{Message: "token refresh rejected", Cause: err}
	}
	return fmt.Errorf("search analytics query failed: %w", err)
}
