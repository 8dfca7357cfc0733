package httpclient

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
)

// The portal rejects requests without a browser-like user agent.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client issues portal requests over a shared cookie jar. Two underlying
// http.Clients are kept so that redirect following can be chosen per call
// while cookies persist across both.
type Client struct {
	jar       *cookiejar.Jar
	follow    *http.Client
	noFollow  *http.Client
	userAgent string
}

// RequestOptions tunes a single request
type RequestOptions struct {
	Headers         map[string]string
	Query           url.Values
	FollowRedirects bool
}

// Response is a fully-read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Location returns the redirect target header, or "" if absent
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// New creates a client with a fresh cookie jar
func New(timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		jar:       jar,
		userAgent: defaultUserAgent,
		follow: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		noFollow: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Jar exposes the shared cookie jar (the websocket dialer reuses it)
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// Get issues a GET request
func (c *Client) Get(ctx context.Context, rawURL string, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, "", opts)
}

// PostJSON issues a POST request with a JSON body
func (c *Client) PostJSON(ctx context.Context, rawURL string, body interface{}, opts *RequestOptions) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, rawURL, bytes.NewReader(data), "application/json", opts)
}

// PostForm issues a POST request with a url-encoded form body
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", opts)
}

// PutJSON issues a PUT request with a JSON body
func (c *Client) PutJSON(ctx context.Context, rawURL string, body interface{}, opts *RequestOptions) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPut, rawURL, bytes.NewReader(data), "application/json", opts)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	if len(opts.Query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid request URL %s: %w", rawURL, err)
		}
		q := u.Query()
		for key, values := range opts.Query {
			for _, value := range values {
				q.Set(key, value)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	httpClient := c.noFollow
	if opts.FollowRedirects {
		httpClient = c.follow
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// CookieValue looks up a named cookie for a domain. The jar is keyed by
// URL, so the lookup probes the domain root over https.
func (c *Client) CookieValue(domain, name string) string {
	u, err := url.Parse(fmt.Sprintf("https://%s/", domain))
	if err != nil {
		return ""
	}
	for _, cookie := range c.jar.Cookies(u) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}
