package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one provider request when no client is supplied.
const DefaultTimeout = 15 * time.Second

// maxBody caps how much of a provider response is read.
const maxBody = 4 << 20

// Provider holds the connection settings for one data provider.
type Provider struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string
	// APIKey is sent in the query parameter named by KeyParam.
	APIKey   string
	KeyParam string
	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client
	// Now defaults to time.Now; used for date ranges.
	Now func() time.Time
}

func (p Provider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (p Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// request describes one GET against a provider.
type request func(p Provider, symbol string) (path string, query url.Values)

// httpTool is a Tool backed by one provider endpoint.
type httpTool struct {
	name        string
	description string
	provider    Provider
	build       request
}

func (t *httpTool) Name() string        { return t.name }
func (t *httpTool) Description() string { return t.description }

// Invoke performs the request and decodes the JSON body.
func (t *httpTool) Invoke(ctx context.Context, symbol string) Result {
	res := Result{Tool: t.name}

	if t.provider.APIKey == "" {
		res.Err = ErrNoAPIKey
		return res
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		res.Err = fmt.Errorf("%s: symbol is required", t.name)
		return res
	}

	path, query := t.build(t.provider, symbol)
	if query == nil {
		query = url.Values{}
	}
	query.Set(t.provider.KeyParam, t.provider.APIKey)

	endpoint := strings.TrimRight(t.provider.BaseURL, "/") + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		res.Err = fmt.Errorf("%s: build request: %w", t.name, err)
		return res
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.provider.client().Do(req)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", t.name, redact(err, t.provider.APIKey))
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		res.Err = fmt.Errorf("%s: read body: %w", t.name, err)
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Err = fmt.Errorf("%s: unexpected status %d", t.name, resp.StatusCode)
		return res
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		res.Err = fmt.Errorf("%s: decode response: %w", t.name, err)
		return res
	}

	// Providers report some failures with a 200 and an error object.
	if m, ok := data.(map[string]any); ok {
		for _, k := range []string{"error", "Error Message"} {
			if msg, ok := m[k].(string); ok && msg != "" {
				res.Err = fmt.Errorf("%s: provider error: %s", t.name, msg)
				return res
			}
		}
	}

	res.Data = data
	return res
}

// redact strips the API key out of transport errors, which quote the URL.
func redact(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), key, "REDACTED"))
}
