package pay2wash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"laundry-status-exporter/config"
	"laundry-status-exporter/internal/session"
	"laundry-status-exporter/internal/status"
	"laundry-status-exporter/internal/telemetry"
)

var tracer = otel.Tracer("laundry-status-exporter/pay2wash")

const (
	loginPath        = "/login"
	statusPathPrefix = "/machine_statuses/"
	maxRedirects     = 5
	userAgent        = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	Email    string
	Password config.Password
	Timeout  time.Duration
	// MaxRequestsPerSec throttles outgoing requests; zero disables throttling.
	MaxRequestsPerSec float64
	HTTPProxy         string
}

// Client talks to the pay2wash site. It owns the cookie jar that carries the
// login session between requests.
type Client struct {
	email    string
	password config.Password

	loginURL     string
	statusURL    *url.URL
	statusPrefix string
	http         *resty.Client
}

// NewClient builds a client with a fresh cookie jar and the redirect policy
// needed to notice expired sessions.
func NewClient(opts Options) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		email:        opts.Email,
		password:     opts.Password,
		loginURL:     baseURL.JoinPath(loginPath).String(),
		statusURL:    baseURL.JoinPath(statusPathPrefix),
		statusPrefix: baseURL.Path + statusPathPrefix,
	}

	httpClient := resty.New()
	httpClient.SetCookieJar(jar)
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetRedirectPolicy(redirectPolicy(c.statusPrefix))
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	if opts.HTTPProxy != "" {
		httpClient.SetProxy(opts.HTTPProxy)
	}

	if opts.MaxRequestsPerSec > 0 {
		limiter := rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSec), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, "laundry-status-exporter/pay2wash/http")

	c.http = httpClient
	return c, nil
}

// redirectPolicy stops after maxRedirects hops, and stops at once when the
// previous hop was the status endpoint so an expired session surfaces as a
// redirect response instead of a login page served with 200.
func redirectPolicy(statusPrefix string) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		if strings.HasPrefix(via[len(via)-1].URL.Path, statusPrefix) {
			return http.ErrUseLastResponse
		}
		return nil
	})
}

// Authenticate loads the login page and, unless the cookie jar already holds
// a live session, submits the credentials.
func (c *Client) Authenticate(ctx context.Context) (*session.Authenticated, error) {
	ctx, span := tracer.Start(ctx, "client:Authenticate")
	defer span.End()

	slog.DebugContext(ctx, "fetching login form for csrf token", "url", c.loginURL)

	sess, err := c.fetchSession(ctx, "GET login form", c.http.R().SetContext(ctx), http.MethodGet)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load login form")
		return nil, err
	}

	switch s := sess.(type) {
	case *session.Authenticated:
		slog.WarnContext(ctx, "attempted to authenticate while in an authenticated session", "location", s.Location)
		return s, nil
	case *session.Unauthenticated:
		return c.Login(ctx, s)
	default:
		return nil, fmt.Errorf("unexpected session type %T", sess)
	}
}

// Login posts the credentials using the CSRF token of an unauthenticated page.
func (c *Client) Login(ctx context.Context, unauth *session.Unauthenticated) (*session.Authenticated, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	slog.DebugContext(ctx, "submitting login form", "url", c.loginURL, "email", c.email)

	req := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"_token":   unauth.CSRFToken(),
			"email":    c.email,
			"password": c.password.Reveal(),
		})

	sess, body, err := c.doFetchSession(ctx, "POST login form", req, http.MethodPost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return nil, err
	}

	auth, ok := sess.(*session.Authenticated)
	if !ok {
		span.SetStatus(codes.Error, ErrAuthenticationFailed.Error())
		return nil, newDocumentError("POST login form", body, ErrAuthenticationFailed)
	}

	slog.DebugContext(ctx, "login succeeded", "location", auth.Location, "machines", len(auth.MachineMappings))
	return auth, nil
}

func (c *Client) fetchSession(ctx context.Context, op string, req *resty.Request, method string) (session.Session, error) {
	sess, _, err := c.doFetchSession(ctx, op, req, method)
	return sess, err
}

func (c *Client) doFetchSession(ctx context.Context, op string, req *resty.Request, method string) (session.Session, []byte, error) {
	res, err := req.Execute(method, c.loginURL)
	if err != nil {
		return nil, nil, &TransportError{Op: op, URL: c.loginURL, Err: err}
	}
	if res.StatusCode() >= http.StatusMultipleChoices {
		return nil, nil, &TransportError{Op: op, URL: c.loginURL, StatusCode: res.StatusCode()}
	}

	body := res.Body()
	slog.DebugContext(ctx, "received page", "op", op, "bytes", len(body))

	doc, err := session.ParseHTML(bytes.NewReader(body))
	if err != nil {
		return nil, body, newDocumentError(op, body, err)
	}

	sess, err := session.Extract(doc)
	if err != nil {
		return nil, body, newDocumentError(op, body, fmt.Errorf("failed to extract session information, the page layout may have changed: %w", err))
	}
	return sess, body, nil
}

// GetMachineStatuses fetches the status feed of the session's location and
// keys it by machine display name. A redirect yields ErrBadSession. A machine
// whose state cannot be derived is still returned, with MachineStatus.Err set.
func (c *Client) GetMachineStatuses(ctx context.Context, sess *session.Authenticated) (map[string]status.MachineStatus, error) {
	ctx, span := tracer.Start(ctx, "client:GetMachineStatuses")
	defer span.End()
	span.SetAttributes(attribute.String("location", sess.Location))

	link := c.statusURL.JoinPath(sess.Location).String()
	res, err := c.http.R().SetContext(ctx).Get(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch machine statuses")
		return nil, &TransportError{Op: "GET machine statuses", URL: link, Err: err}
	}

	if code := res.StatusCode(); code >= http.StatusMultipleChoices && code < http.StatusBadRequest {
		span.SetStatus(codes.Error, ErrBadSession.Error())
		return nil, fmt.Errorf("%w: redirected to %q", ErrBadSession, res.Header().Get("Location"))
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "non-success status code")
		return nil, &TransportError{Op: "GET machine statuses", URL: link, StatusCode: res.StatusCode()}
	}

	body := res.Body()
	var raw map[string]status.JSONMachineStatus
	if err := json.Unmarshal(body, &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode machine statuses")
		return nil, newDocumentError("decode machine statuses", body, err)
	}
	if raw == nil {
		span.SetStatus(codes.Error, "empty machine status feed")
		return nil, newDocumentError("decode machine statuses", body, errors.New("machine status feed is null"))
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	statuses := make(map[string]status.MachineStatus, len(raw))
	for _, id := range ids {
		name, ok := sess.MachineName(id)
		if !ok {
			err := &UnknownMachineIDError{ID: id, Location: sess.Location}
			span.RecordError(err)
			span.SetStatus(codes.Error, "unknown machine id")
			return nil, err
		}

		if _, dup := statuses[name]; dup {
			return nil, fmt.Errorf("machine name %q is used by more than one machine id in location %s", name, sess.Location)
		}

		ms := status.NewMachineStatus(raw[id])
		if ms.Err != nil {
			slog.WarnContext(ctx, "encountered problem decoding machine status",
				"machine", name, "machine_id", id, "raw", fmt.Sprintf("%+v", ms.Raw), "err", ms.Err)
		}
		statuses[name] = ms
	}

	return statuses, nil
}
