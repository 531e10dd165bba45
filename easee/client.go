// Package easee is a thin client for the Easee cloud API. Response bodies are passed
// through untouched as raw JSON; failures are returned as *Error.
package easee

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

	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://api.easee.com"

// MaxBodyBytes caps how much of a response body is read. A success body over the cap
// fails the call rather than being cut short.
var MaxBodyBytes int64 = 8 << 20

// Recorder observes every upstream call, status is 0 when there was no response.
type Recorder interface {
	UpstreamRequest(operation string, status int)
}

type Options struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	Recorder Recorder
}

// Factory binds per-call clients to an access token. Reads retry transport failures up
// to RetryMax times, writes are never retried.
type Factory struct {
	baseURL  string
	timeout  time.Duration
	read     *http.Client
	write    *http.Client
	recorder Recorder
}

func NewFactory(opts Options) *Factory {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	return &Factory{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeout:  opts.Timeout,
		read:     newBaseClient(opts.RetryMax, opts.Timeout),
		write:    newBaseClient(0, opts.Timeout),
		recorder: opts.Recorder,
	}
}

// For returns a client that sends accessToken as a bearer token on every call.
func (f *Factory) For(accessToken string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return &Client{
		baseURL:  f.baseURL,
		read:     f.bind(f.read, src),
		write:    f.bind(f.write, src),
		recorder: f.recorder,
	}
}

// Accounts returns the unauthenticated login and refresh endpoints.
func (f *Factory) Accounts() *Accounts {
	return &Accounts{
		api: &Client{
			baseURL:  f.baseURL,
			read:     f.write,
			write:    f.write,
			recorder: f.recorder,
		},
	}
}

func (f *Factory) bind(base *http.Client, src oauth2.TokenSource) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, src)
	client.Timeout = f.timeout
	return client
}

type Client struct {
	baseURL  string
	read     *http.Client
	write    *http.Client
	recorder Recorder
}

func (c *Client) Chargers(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "chargers", "/api/chargers", nil)
}

func (c *Client) State(ctx context.Context, chargerID string) (json.RawMessage, error) {
	return c.get(ctx, "state", chargerPath(chargerID, "state"), nil)
}

func (c *Client) OngoingSession(ctx context.Context, chargerID string) (json.RawMessage, error) {
	return c.get(ctx, "ongoing_session", chargerPath(chargerID, "sessions/ongoing"), nil)
}

// Sessions lists the charging sessions between the ISO timestamps from and to.
func (c *Client) Sessions(ctx context.Context, chargerID, from, to string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("from", from)
	query.Set("to", to)
	return c.get(ctx, "sessions", chargerPath(chargerID, "sessions"), query)
}

func (c *Client) SetChargerCurrent(ctx context.Context, chargerID string, current float64) (json.RawMessage, error) {
	return c.post(ctx, "set_charger_current", chargerPath(chargerID, "commands/set_charger_current"), map[string]float64{"current": current})
}

func (c *Client) SetDynamicChargerCurrent(ctx context.Context, chargerID string, current float64) (json.RawMessage, error) {
	return c.post(ctx, "settings", chargerPath(chargerID, "settings"), map[string]float64{"dynamicChargerCurrent": current})
}

func (c *Client) PauseCharging(ctx context.Context, chargerID string) (json.RawMessage, error) {
	return c.post(ctx, "pause_charging", chargerPath(chargerID, "commands/pause_charging"), nil)
}

func (c *Client) ResumeCharging(ctx context.Context, chargerID string) (json.RawMessage, error) {
	return c.post(ctx, "resume_charging", chargerPath(chargerID, "commands/resume_charging"), nil)
}

func chargerPath(chargerID, suffix string) string {
	return "/api/chargers/" + url.PathEscape(chargerID) + "/" + suffix
}

func (c *Client) get(ctx context.Context, operation, path string, query url.Values) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, transportError(operation, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(c.read, operation, req)
}

func (c *Client) post(ctx context.Context, operation, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, transportError(operation, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, transportError(operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(c.write, operation, req)
}

func (c *Client) do(client *http.Client, operation string, req *http.Request) (json.RawMessage, error) {
	resp, err := client.Do(req)
	if err != nil {
		c.record(operation, 0)
		return nil, transportError(operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	c.record(operation, resp.StatusCode)
	tooLarge := int64(len(data)) > MaxBodyBytes
	if tooLarge {
		data = data[:MaxBodyBytes]
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(operation, resp.StatusCode, data)
	}
	if err != nil {
		return nil, transportError(operation, fmt.Errorf("read response: %w", err))
	}
	if tooLarge {
		return nil, transportError(operation, fmt.Errorf("response body exceeds %d bytes", MaxBodyBytes))
	}
	return rawJSON(data), nil
}

// rawJSON turns a success body into JSON. An empty body is null, plain text becomes a string.
func rawJSON(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(trimmed))
	return json.RawMessage(quoted)
}

func (c *Client) record(operation string, status int) {
	if c.recorder != nil {
		c.recorder.UpstreamRequest(operation, status)
	}
}
