// Package supabase reaches the hosted backend the application was first
// built on: GoTrue for authentication, through gotrue-go, and PostgREST for
// the transactions relation. Row-level security on the hosted database scopes every query to
// the user of the bearer token.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/remote"
)

const defaultTimeout = 10 * time.Second

// Client implements remote.Backend over the hosted REST API.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	publisher  events.Publisher
	logger     *log.Logger
	now        func() time.Time
}

var (
	_ remote.Backend = (*Client)(nil)
	_ remote.Pinger  = (*Client)(nil)
)

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithPublisher announces global sign-outs to the other workspaces of the
// process.
func WithPublisher(p events.Publisher) Option {
	return func(c *Client) { c.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL, anonKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid supabase url %q", baseURL)
	}
	if anonKey == "" {
		return nil, errors.New("supabase anon key is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		publisher:  events.Discard{},
		logger:     log.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentBackend)
	return c, nil
}

func userFrom(u types.User) core.User {
	isDemo, _ := u.UserMetadata["is_demo"].(bool)
	return core.User{ID: u.ID.String(), Email: u.Email, IsDemo: isDemo, CreatedAt: u.CreatedAt}
}

func sessionFrom(s types.Session, now time.Time) *core.Session {
	expires := time.Time{}
	switch {
	case s.ExpiresAt > 0:
		expires = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		expires = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return &core.Session{
		AccessToken: s.AccessToken,
		IssuedAt:    now,
		ExpiresAt:   expires,
		User:        userFrom(s.User),
	}
}

// authCall carries one request context through the GoTrue client, which has
// no context parameter of its own. It also keeps the failure it saw, since
// the SDK flattens error responses into plain text.
type authCall struct {
	ctx     context.Context
	base    http.RoundTripper
	logger  *log.Logger
	failure error
}

func (a *authCall) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := a.base.RoundTrip(req.WithContext(a.ctx))
	if err != nil {
		a.failure = fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
		return nil, err
	}
	a.logger.DebugContext(a.ctx, "Supabase request completed",
		log.FieldMethod, req.Method,
		log.FieldPath, req.URL.Path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		a.failure = statusError(resp.StatusCode, raw)
		resp.Body = io.NopCloser(bytes.NewReader(raw))
	}
	return resp, nil
}

func (a *authCall) wrap(op string, err error) error {
	if a.failure != nil {
		err = a.failure
	}
	return fmt.Errorf("%s: %w", op, err)
}

// auth returns a GoTrue client for one call. token is sent as the bearer
// when set.
func (c *Client) auth(ctx context.Context, token string) (gotrue.Client, *authCall) {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	call := &authCall{ctx: ctx, base: base, logger: c.logger}
	hc := http.Client{Transport: call, Timeout: c.httpClient.Timeout}

	g := gotrue.New("", c.anonKey).
		WithCustomGoTrueURL(c.baseURL + "/auth/v1").
		WithClient(hc)
	if token != "" {
		g = g.WithToken(token)
	}
	return g, call
}

func (c *Client) SignUp(ctx context.Context, email, password string, meta core.UserMetadata) (*core.Session, error) {
	g, call := c.auth(ctx, "")
	resp, err := g.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
		Data:     map[string]interface{}{"is_demo": meta.IsDemo},
	})
	if err != nil {
		return nil, call.wrap("sign up", err)
	}
	if resp.Session.AccessToken == "" {
		return nil, errors.New("sign up: account requires email confirmation")
	}
	return sessionFrom(resp.Session, c.now()), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	g, call := c.auth(ctx, "")
	resp, err := g.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, call.wrap("sign in", err)
	}
	return sessionFrom(resp.Session, c.now()), nil
}

// SignOut revokes every session of the token's user, the logout endpoint's
// default scope.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	user, userErr := c.GetUser(ctx, accessToken)

	g, call := c.auth(ctx, accessToken)
	if err := g.Logout(); err != nil {
		return call.wrap("sign out", err)
	}

	if userErr == nil {
		e := events.AuthEvent{Type: events.SignedOut, UserID: user.ID, OccurredAt: c.now()}
		if err := c.publisher.PublishAuthEvent(ctx, e); err != nil {
			c.logger.WarnContext(ctx, "Failed to publish sign-out",
				log.FieldUserID, user.ID,
				log.FieldError, err.Error())
		}
	}
	return nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*core.User, error) {
	g, call := c.auth(ctx, accessToken)
	resp, err := g.GetUser()
	if err != nil {
		return nil, call.wrap("get user", err)
	}
	u := userFrom(resp.User)
	return &u, nil
}

type transactionRow struct {
	ID          int64           `json:"id,omitempty"`
	UserID      string          `json:"user_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}

func rowFromInput(in core.TransactionInput) transactionRow {
	return transactionRow{
		UserID:      in.UserID,
		Description: in.Description,
		Amount:      in.Amount,
		Type:        string(in.Kind),
		Date:        in.Date.String(),
		Category:    string(in.Category),
	}
}

func (r transactionRow) toTransaction() (core.Transaction, error) {
	d, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("row %d: %w", r.ID, err)
	}
	tx := core.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		Description: r.Description,
		Amount:      r.Amount,
		Kind:        core.Kind(r.Type),
		Date:        d,
		Category:    core.Category(r.Category),
	}
	if r.CreatedAt != nil {
		tx.CreatedAt = *r.CreatedAt
	}
	return tx, nil
}

func toTransactions(rows []transactionRow) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		tx, err := r.toTransaction()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

var representation = http.Header{"Prefer": {"return=representation"}}

const tablePath = "/rest/v1/" + remote.TransactionsTable

func (c *Client) Select(ctx context.Context, accessToken string, q remote.Query) ([]core.Transaction, error) {
	params := url.Values{"select": {"*"}}
	if q.OwnerID != "" {
		params.Set("user_id", "eq."+q.OwnerID)
	}
	if q.OrderBy != "" {
		dir := "desc"
		if q.Ascending {
			dir = "asc"
		}
		params.Set("order", q.OrderBy+"."+dir+",id."+dir)
	}

	var rows []transactionRow
	if err := c.do(ctx, http.MethodGet, tablePath, params, accessToken, nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	return toTransactions(rows)
}

func (c *Client) Insert(ctx context.Context, accessToken string, in core.TransactionInput) (core.Transaction, error) {
	var rows []transactionRow
	if err := c.do(ctx, http.MethodPost, tablePath, nil, accessToken, rowFromInput(in), representation, &rows); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return single(rows)
}

func (c *Client) Update(ctx context.Context, accessToken string, id int64, in core.TransactionInput) (core.Transaction, error) {
	params := url.Values{"id": {"eq." + strconv.FormatInt(id, 10)}}
	var rows []transactionRow
	if err := c.do(ctx, http.MethodPatch, tablePath, params, accessToken, rowFromInput(in), representation, &rows); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}
	return single(rows)
}

// Delete asks for the removed rows back: under row-level security a row of
// another user is silently skipped, which shows up as an empty result.
func (c *Client) Delete(ctx context.Context, accessToken string, id int64) error {
	params := url.Values{"id": {"eq." + strconv.FormatInt(id, 10)}}
	var rows []transactionRow
	if err := c.do(ctx, http.MethodDelete, tablePath, params, accessToken, nil, representation, &rows); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// Ping checks that the auth service answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/auth/v1/health", nil, "", nil, nil, nil)
}

func single(rows []transactionRow) (core.Transaction, error) {
	if len(rows) == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return rows[0].toTransaction()
}

// do sends one API request. body and out are JSON encoded and decoded when
// non-nil. accessToken falls back to the anon key.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, accessToken string, body any, header http.Header, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("apikey", c.anonKey)
	bearer := accessToken
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Supabase request completed",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError covers the error shapes of both GoTrue and PostgREST.
type apiError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Err} {
		if s != "" {
			return s
		}
	}
	return ""
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return statusError(resp.StatusCode, raw)
}

func statusError(status int, raw []byte) error {
	var e apiError
	_ = json.Unmarshal(raw, &e)
	msg := e.text()
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case e.ErrorCode == "invalid_credentials" || e.Err == "invalid_grant":
		return core.ErrInvalidCredentials
	case e.ErrorCode == "user_already_exists" || e.ErrorCode == "email_exists":
		return core.ErrEmailTaken
	case e.ErrorCode == "weak_password":
		return fmt.Errorf("%w: %s", core.ErrWeakPassword, msg)
	case e.ErrorCode == "email_address_invalid" || e.ErrorCode == "validation_failed":
		return fmt.Errorf("%w: %s", core.ErrInvalidEmail, msg)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", core.ErrUnauthenticated, msg)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", core.ErrForbidden, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", core.ErrNotFound, msg)
	}
	return fmt.Errorf("supabase: status %d: %s", status, msg)
}
