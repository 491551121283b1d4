package main

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
	"time"

	"garagedata/pkg/platform/httputil"
	"garagedata/pkg/platform/middleware/admin"
)

const adminTokenTTL = 5 * time.Minute

var errNoCredentials = errors.New("admin command needs --token or --key (ADMIN_JWT_KEY)")

// apiError is a non-2xx response that did not carry a resolver result.
type apiError struct {
	Status int
	Body   httputil.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.ErrorDescription != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Body.Error, e.Body.ErrorDescription)
	}
	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

type client struct {
	base  *url.URL
	http  *http.Client
	token string
}

func newClient(opts *options, withAdmin bool) (*client, error) {
	base, err := url.Parse(strings.TrimRight(opts.server, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid --server %q", opts.server)
	}
	c := &client{base: base, http: &http.Client{Timeout: opts.timeout}}
	if !withAdmin {
		return c, nil
	}
	c.token, err = adminToken(opts, time.Now())
	if err != nil {
		return nil, err
	}
	return c, nil
}

func adminToken(opts *options, now time.Time) (string, error) {
	if opts.token != "" {
		return opts.token, nil
	}
	if opts.signingKey == "" {
		return "", errNoCredentials
	}
	return admin.IssueToken([]byte(opts.signingKey), opts.actor, adminTokenTTL, now)
}

// do sends a request and returns the status and raw body. Statuses listed in
// accept are returned as-is; any other non-2xx becomes an *apiError.
func (c *client) do(ctx context.Context, method, path string, accept ...int) (int, []byte, error) {
	return c.send(ctx, method, path, nil, accept...)
}

// send is do with an optional JSON request body.
func (c *client) send(ctx context.Context, method, path string, payload any, accept ...int) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 == 2 {
		return resp.StatusCode, body, nil
	}
	for _, s := range accept {
		if resp.StatusCode == s {
			return resp.StatusCode, body, nil
		}
	}
	apiErr := &apiError{Status: resp.StatusCode}
	_ = json.Unmarshal(body, &apiErr.Body)
	return resp.StatusCode, body, apiErr
}
