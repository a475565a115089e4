package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/backend"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/importer"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/handler"
)

type apiError struct {
	Error string `json:"error"`
}

// client talks to the service's HTTP API.
type client struct {
	http *resty.Client
}

// newClient returns a client whose requests give up after d; zero means no
// limit.
func newClient(d time.Duration) *client {
	return &client{
		http: resty.New().
			SetBaseURL(serverURL).
			SetTimeout(d).
			SetHeader("Accept", "application/json"),
	}
}

func (c *client) lookup(ctx context.Context, q, sourceLocale, targetLocale, project string, max int) (*handler.LookupResponse, error) {
	var out handler.LookupResponse
	params := map[string]string{
		"q":             q,
		"source_locale": sourceLocale,
		"target_locale": targetLocale,
	}
	if project != "" {
		params["project"] = project
	}
	if max > 0 {
		params["max"] = strconv.Itoa(max)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/api/v1/tm/lookup")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) backends(ctx context.Context) ([]backend.Status, error) {
	var out struct {
		Backends []backend.Status `json:"backends"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/api/v1/tm/backends")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Backends, nil
}

func (c *client) runImport(ctx context.Context, req importer.Request) (*importer.Result, error) {
	var out importer.Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/api/v1/tm/import")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status(), e.Error)
		}
		return fmt.Errorf("%s", resp.Status())
	}
	return nil
}
