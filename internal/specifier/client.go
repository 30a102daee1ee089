// Package specifier is a small REST+JSON client for the Specifier
// taxonomy API.
package specifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNetwork marks any failed remote call: unreachable host, timeout,
// non-success status or an unreadable response.
var ErrNetwork = errors.New("network failure")

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNetwork
}

// ShotType is one entry of the server's image shot type list.
type ShotType struct {
	ID        string          `json:"-"`
	RawID     json.RawMessage `json:"id"`
	SourceKey string          `json:"sourceKey"`
	Name      string          `json:"name"`
}

// Client talks to the Specifier API.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. A zero timeout disables the client timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) endpointURL(endpoint string, query url.Values) string {
	u := c.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ImageShotTypes fetches the list of shot types the server knows about.
func (c *Client) ImageShotTypes(ctx context.Context) ([]ShotType, error) {
	var shotTypes []ShotType
	if err := c.do(ctx, http.MethodGet, c.endpointURL("image-shot-types", nil), nil, &shotTypes); err != nil {
		return nil, err
	}
	for i := range shotTypes {
		id, err := FormatID(shotTypes[i].RawID)
		if err != nil {
			return nil, fmt.Errorf("%w: shot type %d: %w", ErrNetwork, i, err)
		}
		shotTypes[i].ID = id
	}
	return shotTypes, nil
}

// Create POSTs payload to endpoint and returns the id from the response body.
func (c *Client) Create(ctx context.Context, endpoint string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", endpoint, err)
	}

	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpointURL(endpoint, nil), body, &resp); err != nil {
		return "", err
	}

	id, err := FormatID(resp.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %s response: %w", ErrNetwork, endpoint, err)
	}
	slog.Debug("Created resource", "endpoint", endpoint, "id", id)
	return id, nil
}

// Find GETs endpoint filtered by query and returns the id of the first item
// whose fields equal every query value. The response may be a JSON list or a
// single object. Items that do not carry the queried fields are ignored, so a
// collection that disregards the filter yields a miss rather than a wrong id.
// 404 and 405 are treated as a miss.
func (c *Client) Find(ctx context.Context, endpoint string, query map[string]string) (string, bool, error) {
	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpointURL(endpoint, values), nil, &raw); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) &&
			(statusErr.Code == http.StatusNotFound || statusErr.Code == http.StatusMethodNotAllowed) {
			return "", false, nil
		}
		return "", false, err
	}

	var items []map[string]json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return "", false, nil
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", false, fmt.Errorf("%w: decode %s lookup: %w", ErrNetwork, endpoint, err)
		}
	default:
		var single map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return "", false, fmt.Errorf("%w: decode %s lookup: %w", ErrNetwork, endpoint, err)
		}
		items = append(items, single)
	}

	for _, it := range items {
		if !matches(it, query) {
			continue
		}
		id, err := FormatID(it["id"])
		if err != nil {
			return "", false, fmt.Errorf("%w: %s lookup: %w", ErrNetwork, endpoint, err)
		}
		return id, true, nil
	}
	if len(items) > 0 {
		slog.Debug("Lookup returned no matching item", "endpoint", endpoint, "items", len(items))
	}
	return "", false, nil
}

// matches reports whether every query field is present in item with the
// same scalar value. Numbers compare by their integer text, so 12 equals "12".
func matches(item map[string]json.RawMessage, query map[string]string) bool {
	for k, want := range query {
		raw, ok := item[k]
		if !ok {
			return false
		}
		got, err := FormatID(raw)
		if err != nil || got != strings.TrimSpace(want) {
			return false
		}
	}
	return true
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, URL: u, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s %s response: %w", ErrNetwork, method, u, err)
	}
	return nil
}

// FormatID renders a JSON id (number or string) as path-safe text.
// Integral numbers are printed without exponent or decimal point.
func FormatID(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", errors.New("missing id")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("invalid id %s: %w", trimmed, err)
		}
		if s = strings.TrimSpace(s); s == "" {
			return "", errors.New("empty id")
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", fmt.Errorf("invalid id %s: %w", trimmed, err)
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("invalid id %s: %w", trimmed, err)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
