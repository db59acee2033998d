package scenario

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
)

const (
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// TLSConfig holds client TLS settings, including mTLS material
type TLSConfig struct {
	InsecureSkipVerify bool   `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	CertFile           string `json:"cert_file" yaml:"cert_file"`
	KeyFile            string `json:"key_file" yaml:"key_file"`
	CAFile             string `json:"ca_file" yaml:"ca_file"`
}

// Build converts the settings into a *tls.Config
func (c *TLSConfig) Build() (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caCert, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// ClientConfig sizes the shared connection pool
type ClientConfig struct {
	MaxConns int
	Timeout  time.Duration
	TLS      *TLSConfig
}

// NewHTTPClient creates a pooled client sized for MaxConns concurrent requests
func NewHTTPClient(cfg ClientConfig) (*http.Client, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxConns,
		MaxIdleConnsPerHost: cfg.MaxConns,
		MaxConnsPerHost:     cfg.MaxConns * 2,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: ExpectContinueTimeout,
	}

	if cfg.TLS != nil {
		tlsCfg, err := cfg.TLS.Build()
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}, nil
}

// Expectations decide whether a response counts as a success
type Expectations struct {
	// Statuses lists accepted status codes; empty accepts any 2xx
	Statuses     []int
	BodyExact    string
	BodyContains string
	BodyPattern  string
	// Fields maps JMESPath expressions to expected values.
	// A value wrapped in slashes is matched as a regular expression.
	Fields map[string]string
}

// HTTPConfig describes one HTTP request scenario
type HTTPConfig struct {
	Name    string
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	// BodyFunc builds a fresh body per execution and takes precedence over Body
	BodyFunc func() ([]byte, error)
	// TokenKey names a Shared entry holding a bearer token
	TokenKey   string
	AuthHeader string
	AuthPrefix string
	Expect     Expectations
}

type fieldCheck struct {
	expr    string
	query   *jmespath.JMESPath
	literal string
	pattern *regexp.Regexp
}

// HTTP executes a single request per execution on a shared client
type HTTP struct {
	cfg         HTTPConfig
	client      *http.Client
	bodyPattern *regexp.Regexp
	fields      []fieldCheck
}

// NewHTTP validates the config and compiles its expectations
func NewHTTP(cfg HTTPConfig, client *http.Client) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http scenario %q: url is required", cfg.Name)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Name == "" {
		cfg.Name = cfg.Method + " " + cfg.URL
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.TokenKey != "" && cfg.AuthPrefix == "" {
		cfg.AuthPrefix = "Bearer "
	}
	if client == nil {
		client = http.DefaultClient
	}

	h := &HTTP{cfg: cfg, client: client}

	if cfg.Expect.BodyPattern != "" {
		re, err := regexp.Compile(cfg.Expect.BodyPattern)
		if err != nil {
			return nil, fmt.Errorf("http scenario %q: invalid body pattern: %w", cfg.Name, err)
		}
		h.bodyPattern = re
	}

	for expr, expected := range cfg.Expect.Fields {
		query, err := jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("http scenario %q: invalid JMESPath expression '%s': %w", cfg.Name, expr, err)
		}
		check := fieldCheck{expr: expr, query: query, literal: expected}
		if len(expected) >= 2 && strings.HasPrefix(expected, "/") && strings.HasSuffix(expected, "/") {
			re, err := regexp.Compile(expected[1 : len(expected)-1])
			if err != nil {
				return nil, fmt.Errorf("http scenario %q: invalid regex for field '%s': %w", cfg.Name, expr, err)
			}
			check.pattern = re
		}
		h.fields = append(h.fields, check)
	}

	return h, nil
}

// Name returns the scenario name
func (h *HTTP) Name() string {
	return h.cfg.Name
}

// Execute sends the request and validates the response
func (h *HTTP) Execute(ctx context.Context, shared Shared) (Outcome, error) {
	body, err := h.body()
	if err != nil {
		return Outcome{}, fmt.Errorf("body: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, h.cfg.Method, h.cfg.URL, reader)
	if err != nil {
		return Outcome{}, fmt.Errorf("request: %w", err)
	}
	for key, value := range h.cfg.Headers {
		req.Header.Set(key, value)
	}
	if h.cfg.TokenKey != "" {
		if token, ok := shared[h.cfg.TokenKey].(string); ok && token != "" {
			req.Header.Set(h.cfg.AuthHeader, h.cfg.AuthPrefix+token)
		}
	}

	resp, err := ClientFrom(shared, h.client).Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", transportErrorType(err), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{StatusCode: resp.StatusCode}, fmt.Errorf("read: %w", err)
	}
	RecorderFrom(shared).Record("response_bytes", float64(len(respBody)))

	if !h.expectedStatus(resp.StatusCode) {
		return Outcome{
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("unexpected status: %d", resp.StatusCode),
		}, nil
	}
	if msg := h.validateBody(respBody); msg != "" {
		return Outcome{
			StatusCode: resp.StatusCode,
			Detail:     "validation: " + msg,
		}, nil
	}

	return Outcome{Success: true, StatusCode: resp.StatusCode}, nil
}

func (h *HTTP) body() ([]byte, error) {
	if h.cfg.BodyFunc != nil {
		return h.cfg.BodyFunc()
	}
	if h.cfg.Body != "" {
		return []byte(h.cfg.Body), nil
	}
	return nil, nil
}

func (h *HTTP) expectedStatus(code int) bool {
	if len(h.cfg.Expect.Statuses) == 0 {
		return code >= 200 && code < 300
	}
	for _, s := range h.cfg.Expect.Statuses {
		if s == code {
			return true
		}
	}
	return false
}

// validateBody returns an empty string when every body expectation holds
func (h *HTTP) validateBody(raw []byte) string {
	exp := h.cfg.Expect
	body := string(raw)

	if exp.BodyExact != "" && body != exp.BodyExact {
		return fmt.Sprintf("body does not match expected exact value (expected: %q, got: %q)", exp.BodyExact, body)
	}
	if exp.BodyContains != "" && !strings.Contains(body, exp.BodyContains) {
		return fmt.Sprintf("body does not contain expected substring: %s", exp.BodyContains)
	}
	if h.bodyPattern != nil && !h.bodyPattern.MatchString(body) {
		return fmt.Sprintf("body does not match expected pattern: %s", exp.BodyPattern)
	}

	if len(h.fields) == 0 {
		return ""
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Sprintf("failed to parse JSON body for field validation: %v", err)
	}
	for _, f := range h.fields {
		value, err := f.query.Search(data)
		if err != nil {
			return fmt.Sprintf("field '%s' could not be evaluated: %v", f.expr, err)
		}
		if value == nil {
			return fmt.Sprintf("expected field '%s' not found in response", f.expr)
		}
		actual := fmt.Sprintf("%v", value)
		if f.pattern != nil {
			if !f.pattern.MatchString(actual) {
				return fmt.Sprintf("field '%s' value '%s' does not match pattern '%s'", f.expr, actual, f.pattern)
			}
			continue
		}
		if actual != f.literal {
			return fmt.Sprintf("field '%s' expected '%s' but got '%s'", f.expr, f.literal, actual)
		}
	}
	return ""
}

// transportErrorType classifies a client error so failures group by cause
func transportErrorType(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "connection"
	}
}
