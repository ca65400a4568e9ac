package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netsharklabs/netshark-go/internal/logger"
)

const defaultTimeout = 60 * time.Second

// Options configures a Client.
type Options struct {
	// Token is a bearer token. Takes precedence over Username/Password.
	Token    string
	Username string
	Password string
	// InsecureTLS skips certificate verification. Appliances commonly ship
	// with self-signed certificates.
	InsecureTLS bool
	Timeout     time.Duration
}

// Client is the HTTP implementation of Connector.
type Client struct {
	base  *url.URL
	host  string
	httpc *http.Client
	opts  Options
	log   zerolog.Logger
}

// NewClient builds a Client for the given appliance host. A bare hostname is
// taken as https://<host>.
func NewClient(host string, opts Options) (*Client, error) {
	raw := host
	if u, err := url.Parse(raw); err != nil || u.Scheme == "" {
		raw = "https://" + host
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse appliance host %q: %w", host, err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		base:  base,
		host:  base.Hostname(),
		httpc: &http.Client{Timeout: timeout, Transport: tr},
		opts:  opts,
		log:   logger.L().With().Str("component", "transport").Str("host", base.Hostname()).Logger(),
	}, nil
}

// Host returns the appliance hostname.
func (c *Client) Host() string {
	return c.host
}

// JSONRequest implements Connector.
func (c *Client) JSONRequest(ctx context.Context, method, path string, body any, params url.Values, out any) error {
	resp, err := c.do(ctx, method, path, body, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: err.Error(), Method: method, Path: path}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Download implements Connector.
func (c *Client) Download(ctx context.Context, path string, params url.Values, filename string, overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(filename, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	resp, err := c.do(ctx, http.MethodGet, path, nil, params)
	if err != nil {
		os.Remove(filename)
		return err
	}
	defer resp.Body.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		os.Remove(filename)
		return fmt.Errorf("download %s: %w", path, err)
	}
	c.log.Debug().Str("path", path).Str("file", filename).Int64("bytes", n).Msg("download complete")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, params url.Values) (*http.Response, error) {
	u := *c.base
	u.Path = path
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.opts.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	case c.opts.Username != "":
		req.SetBasicAuth(c.opts.Username, c.opts.Password)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &Error{StatusCode: 0, Message: err.Error(), Method: method, Path: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp, method, path)
	}
	return resp, nil
}

// errorFromResponse extracts the appliance error_text when the body carries
// one, falling back to the raw body.
func (c *Client) errorFromResponse(resp *http.Response, method, path string) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := string(bytes.TrimSpace(data))
	var body struct {
		ErrorText string `json:"error_text"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.ErrorText != "" {
		msg = body.ErrorText
	}
	if msg == "" {
		msg = resp.Status
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("request failed")
	return &Error{StatusCode: resp.StatusCode, Message: msg, Method: method, Path: path}
}
