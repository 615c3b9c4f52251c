package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/retry"
)

const apiPrefix = "/rest/api"

// Client talks to the content service over its REST API. Endpoints are tried
// in order; the last endpoint that answered is preferred for later calls.
type Client struct {
	endpoints []string
	host      string
	pageSize  int
	username  string
	password  string

	http      *retryablehttp.Client
	session   *session
	preferred atomic.Int32
	logger    *slog.Logger
}

var _ Gateway = (*Client)(nil)

// NewClient builds a client from the gateway and site sections.
func NewClient(gc config.GatewayConfig, site config.SiteConfig) (*Client, error) {
	if len(gc.Endpoints) == 0 {
		return nil, errors.ConfigError("gateway has no endpoints").Build()
	}
	endpoints := make([]string, 0, len(gc.Endpoints))
	for _, ep := range gc.Endpoints {
		u, err := url.Parse(ep)
		if err != nil || !u.IsAbs() {
			return nil, errors.ConfigError("invalid gateway endpoint").
				WithCause(err).WithContext("endpoint", ep).Build()
		}
		endpoints = append(endpoints, strings.TrimRight(ep, "/"))
	}

	policy := retry.FromConfig(gc.Retry)
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	if gc.Timeout > 0 {
		rc.HTTPClient.Timeout = gc.Timeout
	}
	rc.RetryMax = policy.MaxRetries
	rc.RetryWaitMin = policy.Initial
	rc.RetryWaitMax = policy.Max
	rc.Backoff = func(_, _ time.Duration, attempt int, _ *http.Response) time.Duration {
		return policy.Delay(attempt + 1)
	}
	rc.Logger = nil

	pageSize := gc.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	c := &Client{
		endpoints: endpoints,
		host:      strings.TrimRight(site.Host, "/"),
		pageSize:  pageSize,
		username:  gc.Username,
		password:  gc.Password,
		http:      rc,
		logger:    slog.Default(),
	}
	c.session = newSession(gc.Token, c.login)
	return c, nil
}

// WithLogger sets the logger used for failover and request diagnostics.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
		c.http.Logger = l
	}
	return c
}

// Login performs the session exchange eagerly so that authentication failures
// surface before any fetch begins.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.session.token(ctx)
	return err
}

type spaceResponse struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (c *Client) Space(ctx context.Context, key string) (docmodel.Space, error) {
	var out spaceResponse
	if err := c.getJSON(ctx, "/space/"+url.PathEscape(key), nil, &out); err != nil {
		return docmodel.Space{}, err
	}
	return docmodel.Space{Key: out.Key, Name: out.Name, URL: out.URL}, nil
}

type listResponse[T any] struct {
	Results []T `json:"results"`
}

func (c *Client) ListPages(ctx context.Context, space string) ([]PageSummary, error) {
	return listAll[PageSummary](ctx, c, "/space/"+url.PathEscape(space)+"/content/page")
}

func (c *Client) ListBlogEntries(ctx context.Context, space string) ([]BlogSummary, error) {
	return listAll[BlogSummary](ctx, c, "/space/"+url.PathEscape(space)+"/content/blogpost")
}

func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	for start := 0; ; start += c.pageSize {
		q := url.Values{}
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(c.pageSize))
		var page listResponse[T]
		if err := c.getJSON(ctx, path, q, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if len(page.Results) < c.pageSize {
			return all, nil
		}
	}
}

func (c *Client) GetPage(ctx context.Context, id string) (docmodel.Payload, error) {
	var out docmodel.Payload
	if err := c.getJSON(ctx, "/content/"+url.PathEscape(id), nil, &out); err != nil {
		return docmodel.Payload{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

type versionResponse struct {
	Number int `json:"number"`
}

func (c *Client) GetBlogVersion(ctx context.Context, id string) (int, error) {
	var out versionResponse
	if err := c.getJSON(ctx, "/content/"+url.PathEscape(id)+"/version", nil, &out); err != nil {
		return 0, err
	}
	return out.Number, nil
}

type exportResponse struct {
	Body struct {
		ExportView struct {
			Value string `json:"value"`
		} `json:"export_view"`
	} `json:"body"`
}

func (c *Client) GetExportHTML(ctx context.Context, id string) (string, error) {
	q := url.Values{}
	q.Set("expand", "body.export_view")
	var out exportResponse
	if err := c.getJSON(ctx, "/content/"+url.PathEscape(id), q, &out); err != nil {
		return "", err
	}
	return out.Body.ExportView.Value, nil
}

func (c *Client) ListAttachments(ctx context.Context, id string) ([]Attachment, error) {
	return listAll[Attachment](ctx, c, "/content/"+url.PathEscape(id)+"/child/attachment")
}

// Download fetches a binary asset from the live host. Credentialed requests
// carry basic auth and ask the server for basic authentication explicitly.
func (c *Client) Download(ctx context.Context, href string, auth bool) (io.ReadCloser, error) {
	target := href
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.host + target
	}
	if auth {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "os_authType=basic"
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.GatewayError("failed to create download request").
			WithCause(err).WithContext("url", target).Build()
	}
	if auth && c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NetworkError("download failed").
			WithCause(err).WithContext("url", target).Build()
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError(resp, target)
	}
	return resp.Body, nil
}

// getJSON issues a GET against each endpoint in turn, starting with the
// preferred one. Transient failures move on to the next endpoint; client
// errors are returned immediately.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.session.token(ctx)
	if err != nil {
		return err
	}

	start := int(c.preferred.Load())
	var lastErr error
	for i := range c.endpoints {
		idx := (start + i) % len(c.endpoints)
		ep := c.endpoints[idx]
		err := c.getJSONFrom(ctx, ep, path, query, token, out)
		if err == nil {
			if idx != start {
				c.preferred.Store(int32(idx))
			}
			return nil
		}
		lastErr = err
		if !transient(err) {
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}
		c.logger.Warn("Gateway endpoint failed, trying next",
			logfields.Endpoint(ep), slog.String("request", path), logfields.Error(err))
	}
	return lastErr
}

func (c *Client) getJSONFrom(ctx context.Context, endpoint, path string, query url.Values, token string, out any) error {
	u := endpoint + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.GatewayError("failed to create request").
			WithCause(err).WithContext("url", u).Build()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "wikiexport/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NetworkError("gateway request failed").
			WithCause(err).WithContext("url", u).Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return statusError(resp, u)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.GatewayError("failed to decode response").
			WithCause(err).WithContext("url", u).Build()
	}
	return nil
}

type loginResponse struct {
	Token string `json:"token"`
}

// login exchanges basic credentials for a session token. Without a username
// the service is used anonymously.
func (c *Client) login(ctx context.Context) (string, error) {
	if c.username == "" {
		return "", nil
	}
	var lastErr error
	for _, ep := range c.endpoints {
		u := ep + apiPrefix + "/session"
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u, nil)
		if err != nil {
			return "", errors.AuthError("failed to create login request").WithCause(err).Build()
		}
		req.SetBasicAuth(c.username, c.password)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = errors.NetworkError("login request failed").
				WithCause(err).WithContext("endpoint", ep).Build()
			continue
		}
		var out loginResponse
		func() {
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode >= 400 {
				err = statusError(resp, u)
				return
			}
			err = json.NewDecoder(resp.Body).Decode(&out)
		}()
		if err != nil {
			if !transient(err) {
				return "", err
			}
			lastErr = err
			continue
		}
		c.logger.Debug("Gateway login succeeded", logfields.Endpoint(ep))
		return out.Token, nil
	}
	return "", errors.WrapError(lastErr, errors.CategoryAuth, "login failed on every endpoint").Fatal().Build()
}

func statusError(resp *http.Response, u string) error {
	limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	body := strings.ReplaceAll(string(limited), "\n", " ")
	msg := fmt.Sprintf("content service error: %s", resp.Status)

	var b *errors.ErrorBuilder
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		b = errors.AuthError(msg)
	case resp.StatusCode == http.StatusNotFound:
		b = errors.NewError(errors.CategoryNotFound, msg)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		b = errors.GatewayError(msg)
	default:
		b = errors.GatewayError(msg).WithRetry(errors.RetryNever)
	}
	return b.WithContext("code", resp.StatusCode).
		WithContext("url", u).
		WithContext("response", body).
		Build()
}

// transient reports whether another endpoint may succeed where err failed.
func transient(err error) bool {
	ce, ok := errors.AsClassified(err)
	return ok && ce.CanRetry()
}
