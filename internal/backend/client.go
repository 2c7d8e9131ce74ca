package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/metrics"
	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

const (
	// ChannelHeader carries the deployment channel tag on every backend call.
	ChannelHeader = "X-Channel"

	maxResponseBytes = 1 << 20
)

// Client talks to the RDBS back-office API on behalf of the gateway.
type Client struct {
	baseURL string
	channel string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a backend client. A nil logger disables logging.
func NewClient(baseURL, channel string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		channel: channel,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("backend"),
	}
}

// BaseURL returns the API root the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Channel returns the deployment channel tag.
func (c *Client) Channel() string {
	return c.channel
}

// Authenticate exchanges an email/password pair for the canonical user record
// and the backend credentials. It never retries.
func (c *Client) Authenticate(ctx context.Context, email, password string) (models.UserIdentity, models.Credentials, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.UserIdentity{}, models.Credentials{}, ErrMissingCredentials
	}

	var env loginEnvelope
	err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", loginRequest{
		Email:    email,
		Password: password,
		Channel:  c.channel,
	}, &env)
	if err == nil {
		var user models.UserIdentity
		body := env.unwrap()
		user, err = body.User.identity(c.log)
		if err == nil && body.AccessToken == "" {
			err = fmt.Errorf("%w: access token missing", ErrMalformedResponse)
		}
		if err == nil {
			c.log.Debug("login accepted", zap.String("user_id", user.ID), zap.Int("permissions", len(user.Permissions)))
			return user, models.Credentials{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, nil
		}
	}

	c.logFailure("login failed", err, zap.String("email", email))
	return models.UserIdentity{}, models.Credentials{}, err
}

// Refresh rotates backend credentials using the refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.Credentials, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return models.Credentials{}, ErrInvalidCredentials
	}
	var env loginEnvelope
	if err := c.do(ctx, "refresh", http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, &env); err != nil {
		c.logFailure("refresh failed", err)
		return models.Credentials{}, err
	}
	body := env.unwrap()
	if body.AccessToken == "" {
		err := fmt.Errorf("%w: access token missing", ErrMalformedResponse)
		c.logFailure("refresh failed", err)
		return models.Credentials{}, err
	}
	creds := models.Credentials{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	return creds, nil
}

// FetchPermissions returns the current permission list of the bearer.
func (c *Client) FetchPermissions(ctx context.Context, accessToken string) ([]string, error) {
	var env permissionsEnvelope
	if err := c.do(ctx, "permissions", http.MethodGet, "/auth/me/permissions", accessToken, nil, &env); err != nil {
		c.logFailure("permission fetch failed", err)
		return nil, err
	}
	body := &env
	for body.Permissions == nil && body.Data != nil {
		body = body.Data
	}
	return permissionNames(body.Permissions)
}

func (c *Client) do(ctx context.Context, endpoint, method, path, bearer string, in, out any) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveBackend(endpoint, Category(err), started) }()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(ChannelHeader, c.channel)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if statusErr := statusError(resp.StatusCode); statusErr != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("%s %s returned %d: %w", method, path, resp.StatusCode, statusErr)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("category", Category(err)), zap.Error(err))
	switch Category(err) {
	case "invalid_credentials", "missing_credentials":
		c.log.Info(msg, fields...)
	case "not_found":
		c.log.Error(msg+": check API base URL", fields...)
	default:
		c.log.Error(msg, fields...)
	}
}
