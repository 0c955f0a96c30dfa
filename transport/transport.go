// Package transport sends authenticated requests to the backend. It knows the
// two credential schemes the service accepts (app key/secret and session auth
// tokens) and maps error responses onto the SDK error taxonomy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
)

// AuthMode selects the credentials attached to a request.
type AuthMode int

const (
	// AuthNone sends no Authorization header.
	AuthNone AuthMode = iota
	// AuthApp authenticates with the app key and secret (basic auth).
	AuthApp
	// AuthSession authenticates with the active session's auth token.
	AuthSession
)

// Host selects which backend host a request is sent to.
type Host int

const (
	// HostAPI targets the data/user API host.
	HostAPI Host = iota
	// HostAuth targets the identity-provider auth host.
	HostAuth
)

// TokenFunc supplies the active session's auth token for AuthSession
// requests.
type TokenFunc func(ctx context.Context) (string, error)

// Request describes one backend call.
type Request struct {
	Method     string
	Path       string
	Query      url.Values
	Body       any // marshaled to JSON when non-nil; json.RawMessage passes through
	AuthMode   AuthMode
	Host       Host
	Properties map[string]string // extra headers forwarded verbatim
	Timeout    time.Duration     // zero means the client default
}

// Response is the raw outcome of a successful backend call.
type Response struct {
	StatusCode int
	Data       []byte
}

// IsSuccess reports whether the response carried a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errors.Wrap(err, "[Response.Decode] failed to unmarshal response body")
	}
	return nil
}

// Client executes requests against the backend hosts.
type Client struct {
	apiBase        *url.URL
	authBase       *url.URL
	appKey         string
	appSecret      string
	httpClient     *http.Client
	token          TokenFunc
	defaultTimeout time.Duration
	logger         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTokenFunc wires the lookup used to resolve the active session's auth
// token for AuthSession requests.
func WithTokenFunc(fn TokenFunc) Option {
	return func(c *Client) {
		c.token = fn
	}
}

// New creates a Client for the hosts named in cfg.
func New(cfg config.Config, appKey, appSecret string, opts ...Option) (*Client, error) {
	if appKey == "" {
		return nil, errors.New("[transport.New] app key is required")
	}
	apiBase, err := url.Parse(cfg.APIHost)
	if err != nil {
		return nil, errors.Wrap(err, "[transport.New] invalid API host")
	}
	authBase, err := url.Parse(cfg.AuthHost)
	if err != nil {
		return nil, errors.Wrap(err, "[transport.New] invalid auth host")
	}

	client := &Client{
		apiBase:        apiBase,
		authBase:       authBase,
		appKey:         appKey,
		appSecret:      appSecret,
		httpClient:     http.DefaultClient,
		defaultTimeout: cfg.RequestTimeout,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Execute sends one request and returns its response. Non-2xx statuses are
// returned as errors: 404 maps onto ErrNotFound, everything else onto a
// *ServerError.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target := c.requestURL(req)

	var body io.Reader
	if req.Body != nil {
		encoded, err := encodeBody(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Execute] failed to build request")
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Properties {
		httpReq.Header.Set(k, v)
	}
	if err := c.authorize(ctx, httpReq, req.AuthMode); err != nil {
		return nil, err
	}

	c.logger.Debug().Str("method", req.Method).Str("url", target).Msg("executing backend request")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Execute] request failed")
	}
	defer httpResp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Execute] failed to read response body")
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Data: data}
	if resp.IsSuccess() {
		return resp, nil
	}
	return nil, c.responseError(resp)
}

func (c *Client) requestURL(req Request) string {
	base := c.apiBase
	if req.Host == HostAuth {
		base = c.authBase
	}
	target := *base
	target.Path = req.Path
	if req.Query != nil {
		target.RawQuery = req.Query.Encode()
	}
	return target.String()
}

func (c *Client) authorize(ctx context.Context, httpReq *http.Request, mode AuthMode) error {
	switch mode {
	case AuthNone:
	case AuthApp:
		httpReq.SetBasicAuth(c.appKey, c.appSecret)
	case AuthSession:
		if c.token == nil {
			return ErrMissingAuthToken
		}
		token, err := c.token(ctx)
		if err != nil {
			return errors.Wrap(err, "[Client.Execute] failed to resolve session token")
		}
		if token == "" {
			return ErrMissingAuthToken
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (c *Client) responseError(resp *Response) error {
	var serverErr struct {
		Name        string `json:"error"`
		Description string `json:"description"`
	}
	// The body is best-effort; some proxies return plain text.
	_ = json.Unmarshal(resp.Data, &serverErr)

	if resp.StatusCode == http.StatusNotFound {
		if serverErr.Name != "" {
			return errors.Wrap(ErrNotFound, serverErr.Name)
		}
		return ErrNotFound
	}
	return &ServerError{
		StatusCode:  resp.StatusCode,
		Name:        serverErr.Name,
		Description: serverErr.Description,
	}
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.Execute] failed to marshal request body")
		}
		return encoded, nil
	}
}
