// Package assistant sends transcripts to the remote assistant backend.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rbright/resq/internal/version"
)

var (
	// ErrNetwork covers transport failures, deadlines, and non-2xx statuses.
	ErrNetwork = errors.New("assistant request failed")
	// ErrMalformedReply covers bodies that lack a usable reply.
	ErrMalformedReply = errors.New("assistant reply malformed")
	// ErrEmptyText rejects blank requests before they reach the wire.
	ErrEmptyText = errors.New("assistant request text is empty")
)

const maxReplyBytes = 1 << 20

// Request is the immutable payload built from one transcript.
type Request struct {
	Text string `json:"text"`
}

// Reply is the parsed assistant response. AudioRef is empty when the
// backend returned no audio. Locations, Summary, and Keywords are optional.
type Reply struct {
	ResponseText string
	AudioRef     string
	Locations    []string
	Summary      string
	Keywords     []string
}

// HasAudio reports whether the reply points at a playable resource.
func (r Reply) HasAudio() bool {
	return r.AudioRef != ""
}

type wireReply struct {
	ResponseText *string  `json:"response_text"`
	AudioURL     *string  `json:"audio_url"`
	AudioPath    *string  `json:"audio_path"`
	Locations    []string `json:"locations"`
	Summary      *string  `json:"summary"`
	Keywords     []string `json:"keywords"`
}

// Client performs single-attempt requests against one endpoint.
type Client struct {
	base *url.URL
	path string
	http *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithPath overrides the request path (default /process_text).
func WithPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.path = path
		}
	}
}

// NewClient validates endpoint and builds a client. The client applies no
// timeout of its own; callers bound requests through ctx.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse assistant endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("assistant endpoint %q must use http or https", endpoint)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("assistant endpoint %q has no host", endpoint)
	}

	c := &Client{
		base: base,
		path: "/process_text",
		http: NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewHTTPClient returns an http.Client whose transport emits client spans.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)}
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.base.String()
}

// HTTPClient exposes the instrumented client for related fetches.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Send posts req once. Errors wrap ErrNetwork or ErrMalformedReply.
func (c *Client) Send(ctx context.Context, req Request) (Reply, error) {
	ctx, span := tracer.Start(ctx, "assistant.send")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(req.Text)))

	reply, err := c.send(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}
	span.SetAttributes(
		attribute.Bool("reply.has_audio", reply.HasAudio()),
		attribute.Int("reply.locations", len(reply.Locations)),
	)
	return reply, nil
}

func (c *Client) send(ctx context.Context, req Request) (Reply, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Reply{}, ErrEmptyText
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}

	target := c.base.ResolveReference(&url.URL{Path: c.path})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, fmt.Errorf("%w: status %d: %s", ErrNetwork, resp.StatusCode, excerpt(payload))
	}

	return parseReply(payload)
}

// Probe issues a GET against path and returns the HTTP status. Any status
// counts as reachable; only transport failures are errors.
func (c *Client) Probe(ctx context.Context, path string) (int, error) {
	if path == "" {
		path = "/"
	}
	target := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

func parseReply(payload []byte) (Reply, error) {
	var wire wireReply
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if wire.ResponseText == nil || strings.TrimSpace(*wire.ResponseText) == "" {
		return Reply{}, fmt.Errorf("%w: missing response_text", ErrMalformedReply)
	}

	reply := Reply{
		ResponseText: strings.TrimSpace(*wire.ResponseText),
		Locations:    compact(wire.Locations),
		Keywords:     compact(wire.Keywords),
	}
	switch {
	case wire.AudioURL != nil:
		reply.AudioRef = strings.TrimSpace(*wire.AudioURL)
	case wire.AudioPath != nil:
		reply.AudioRef = strings.TrimSpace(*wire.AudioPath)
	}
	if wire.Summary != nil {
		reply.Summary = strings.TrimSpace(*wire.Summary)
	}
	return reply, nil
}

// ResolveAudio resolves an audio pointer against the endpoint origin.
func (c *Client) ResolveAudio(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty audio reference")
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse audio reference %q: %w", ref, err)
	}
	origin := &url.URL{Scheme: c.base.Scheme, Host: c.base.Host}
	return origin.ResolveReference(parsed).String(), nil
}

func compact(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func excerpt(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		return text[:200] + "…"
	}
	if text == "" {
		return "(empty body)"
	}
	return text
}
