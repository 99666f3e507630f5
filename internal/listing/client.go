package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
)

const maxResponseBytes = 8 << 20

// Client talks to the dashboard backend. It keeps a cookie jar so the session
// and CSRF cookies survive between calls.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its Jar is kept if set.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithTokenSource sets where action tokens come from.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) { c.tokens = ts }
}

// NewClient returns a client for baseURL. Without a token source, the token
// is read from the backend's root page on first use.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, apperr.NewInvalidRequest(fmt.Sprintf("invalid backend url %q: %v", baseURL, err))
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, apperr.NewInvalidRequest(fmt.Sprintf("invalid backend url %q", baseURL))
	}

	jar, _ := cookiejar.New(nil)
	c := &Client{base: u, http: &http.Client{Jar: jar, Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}
	if c.tokens == nil {
		c.tokens = &PageTokenSource{Client: c}
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// resolve joins path to the base URL. Query parameters already on path are
// kept; a key also present in q takes q's values.
func (c *Client) resolve(path string, q url.Values) string {
	u := *c.base
	u.RawQuery = ""
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")

	vals := ref.Query()
	for k, v := range q {
		vals[k] = v
	}
	if len(vals) > 0 {
		u.RawQuery = vals.Encode()
	}
	return u.String()
}

// FetchPage loads one page of endpoint.
func (c *Client) FetchPage(ctx context.Context, endpoint string, q Query, itemsPath, searchParam string) (*Page, error) {
	target := c.resolve(endpoint, q.Values(searchParam))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperr.NewInvalidRequest(err.Error())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	status, body, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}

	page, decodeErr := DecodePage(body, itemsPath, q)
	if status < 200 || status > 299 {
		// An error status is an application failure only when the body says so.
		if apperr.Is(decodeErr, apperr.ErrApplicationFailure) {
			return nil, apperr.NewApplicationFailure(apperr.UserMessage(decodeErr), status)
		}
		return nil, apperr.NewNetworkFailure(endpoint, status, nil)
	}
	if decodeErr != nil {
		if apperr.Is(decodeErr, apperr.ErrApplicationFailure) {
			return nil, decodeErr
		}
		return nil, apperr.NewNetworkFailure(endpoint, status, decodeErr)
	}
	return page, nil
}

// ActionResult is the answer to a mutating action.
type ActionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Do runs a mutating action. The CSRF token is sent in X-CSRFToken; body, if
// not nil, is sent as JSON.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*ActionResult, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.NewInvalidRequest(fmt.Sprintf("encode action body: %v", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), c.resolve(path, nil), reader)
	if err != nil {
		return nil, apperr.NewInvalidRequest(err.Error())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if token != "" {
		req.Header.Set(CSRFHeader, token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	status, respBody, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}

	result, decodeErr := decodeAction(respBody)
	if decodeErr != nil {
		return nil, apperr.NewNetworkFailure(path, status, decodeErr)
	}
	if !result.Success {
		return nil, apperr.NewApplicationFailure(result.Message, status)
	}
	if status < 200 || status > 299 {
		return nil, apperr.NewNetworkFailure(path, status, nil)
	}
	return result, nil
}

func decodeAction(body []byte) (*ActionResult, error) {
	doc, err := oj.Parse(body)
	if err != nil {
		return nil, err
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", doc)
	}
	res := &ActionResult{Success: boolValue(root["success"]), Message: stringValue(root["message"])}
	for k, v := range root {
		if k == "success" || k == "message" {
			continue
		}
		if res.Payload == nil {
			res.Payload = map[string]any{}
		}
		res.Payload[k] = v
	}
	return res, nil
}

func (c *Client) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, apperr.NewNetworkFailure(req.URL.Path, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, apperr.NewNetworkFailure(req.URL.Path, resp.StatusCode, err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) fetchHTML(ctx context.Context, path string) ([]byte, []*http.Cookie, error) {
	target := c.resolve(path, nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, apperr.NewInvalidRequest(err.Error())
	}
	req.Header.Set("Accept", "text/html")
	status, body, err := c.roundTrip(req)
	if err != nil {
		return nil, nil, err
	}
	if status < 200 || status > 299 {
		return nil, nil, apperr.NewNetworkFailure(path, status, nil)
	}
	return body, c.http.Jar.Cookies(req.URL), nil
}

func (c *Client) cookies() []*http.Cookie {
	return c.http.Jar.Cookies(c.base)
}
