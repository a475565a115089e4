// Package amagama queries a remote amaGama translation memory server over
// HTTP. Scores come back on the server's native 0..100 quality scale.
package amagama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

// DefaultPort is the port amaGama deployments are usually reached on.
const DefaultPort = 443

type unit struct {
	Source  string  `json:"source"`
	Target  string  `json:"target"`
	Quality float64 `json:"quality"`
	Rank    float64 `json:"rank"`
}

// Client is a read-only match source.
type Client struct {
	baseURL string
	http    *resty.Client
	logger  *slog.Logger
}

// New creates a client for host:port. Port 443 is spoken to over HTTPS,
// anything else over plain HTTP. Deadlines come from the caller's context.
func New(name, host string, port int) *Client {
	scheme := "http"
	if port == 443 {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s", scheme, host)
	if port != 0 && port != 80 && port != 443 {
		base = fmt.Sprintf("%s://%s:%d", scheme, host, port)
	}
	return NewWithBaseURL(name, base)
}

// NewWithBaseURL creates a client rooted at baseURL, e.g.
// "https://amagama-live.translatehouse.org".
func NewWithBaseURL(name, baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: resty.New().
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "tm-service"),
		logger: slog.Default().With("component", "amagama", "backend", name),
	}
}

// Lookup asks the server for units similar to q.SourceText. amaGama has no
// notion of projects, so the scope is ignored. A 404 means the locale pair
// is unknown to the server and yields no candidates.
func (c *Client) Lookup(ctx context.Context, q source.Query) ([]tm.MatchCandidate, error) {
	endpoint := fmt.Sprintf("%s/tmserver/%s/%s/unit/%s",
		c.baseURL,
		url.PathEscape(q.SourceLocale),
		url.PathEscape(q.TargetLocale),
		url.PathEscape(q.SourceText),
	)
	var units []unit
	req := c.http.R().SetContext(ctx).SetResult(&units)
	if q.Limit > 0 {
		req.SetQueryParam("max_candidates", strconv.Itoa(q.Limit))
	}
	resp, err := req.Get(endpoint)
	if err != nil {
		return nil, classify(ctx, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return []tm.MatchCandidate{}, nil
	case resp.StatusCode() >= 500:
		return nil, fmt.Errorf("%w: amagama %s", apperrors.ErrBackendUnavailable, resp.Status())
	case resp.IsError():
		return nil, fmt.Errorf("amagama lookup: %s; body: %s", resp.Status(), abbreviate(resp.String(), 200))
	}

	out := make([]tm.MatchCandidate, 0, len(units))
	for _, u := range units {
		if u.Target == "" {
			continue
		}
		out = append(out, tm.MatchCandidate{
			SourceText: u.Source,
			TargetText: u.Target,
			RawScore:   u.Quality,
		})
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	c.logger.Debug("amagama lookup", "candidates", len(out))
	return out, nil
}

// Ping checks that the server answers at all. Any HTTP status counts as
// alive.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.http.R().SetContext(ctx).Head(c.baseURL + "/tmserver/"); err != nil {
		return classify(ctx, err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperrors.ErrBackendTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrBackendUnavailable, err)
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
