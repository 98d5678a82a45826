// Package connect implements the Skoda Connect cloud API client: account
// authentication, vehicle state retrieval and remote actions.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/client/tokencache"
	"github.com/stefanuc111/homeassistant-skodaconnect/internal/config"
)

const (
	loginPath   = "api/v1/authentication/login"
	logoutPath  = "api/v1/authentication/logout"
	garagePath  = "api/v1/garage/vehicles"
	statusPath  = "api/v1/vehicles/%s/status"
	tokenExpiry = time.Hour
)

// ErrAuthDenied indicates the service rejected the credentials, or the
// account has not accepted the current EULA on the Connect portal.
var ErrAuthDenied = errors.New("authorization denied")

// Client talks to the Skoda Connect API on behalf of one account.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	username   string
	password   string
	spin       string
	tokens     *tokencache.Cache
	loggedIn   atomic.Bool
	debug      bool
	logger     *zerolog.Logger
}

// New creates a new Connect client from the bridge settings.
func New(settings *config.Settings, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("HTTP client is nil")
	}
	baseURL, err := url.Parse(settings.ConnectBaseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing Connect base URL: %w", err)
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		username:   settings.Username,
		password:   settings.Password,
		spin:       settings.SPIN,
		debug:      settings.Debug,
		logger:     &logger,
	}
	c.tokens = tokencache.New(tokenExpiry, 24*time.Hour, c)

	return c, nil
}

// LoggedIn reports whether the client holds an authenticated session.
func (c *Client) LoggedIn() bool {
	return c.loggedIn.Load()
}

// Login authenticates against the Connect service. It is idempotent; a
// client that is already logged in returns immediately. Credential and
// EULA failures return ErrAuthDenied.
func (c *Client) Login(ctx context.Context) error {
	if c.loggedIn.Load() {
		return nil
	}

	if _, err := c.tokens.GetToken(ctx, tokencache.AccountTokenKey(c.username)); err != nil {
		return err
	}

	c.loggedIn.Store(true)
	c.logger.Info().Str("account", c.username).Msg("logged in to Skoda Connect")
	return nil
}

// Logout revokes the session. Already being logged out is not an error.
func (c *Client) Logout(ctx context.Context) error {
	if !c.loggedIn.Load() {
		return nil
	}

	req, err := c.newAuthorizedRequest(ctx, http.MethodPost, logoutPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send logout request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore error
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("non-200 response from logout: %d", resp.StatusCode)
	}

	c.loggedIn.Store(false)
	c.tokens.Invalidate(tokencache.AccountTokenKey(c.username))
	c.logger.Info().Str("account", c.username).Msg("logged out from Skoda Connect")
	return nil
}

// GetToken implements tokencache.TokenGetter by performing the credential
// login and returning the issued access token.
func (c *Client) GetToken(ctx context.Context, _ string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: c.username, Password: c.password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	loginURL, err := c.baseURL.Parse(loginPath)
	if err != nil {
		return "", fmt.Errorf("error creating login URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", ksuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send login request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore error

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read login response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		if apiErr.Error == "login.error.eula_not_accepted" {
			return "", fmt.Errorf("%w: accept the EULA on the Skoda Connect portal", ErrAuthDenied)
		}
		return "", fmt.Errorf("%w: check account credentials", ErrAuthDenied)
	default:
		return "", fmt.Errorf("non-200 response from login: %d", resp.StatusCode)
	}

	var tokens loginResponse
	if err := json.Unmarshal(respBody, &tokens); err != nil {
		return "", fmt.Errorf("failed to unmarshal login response: %w", err)
	}
	if tokens.AccessToken == "" {
		return "", fmt.Errorf("login response contains no access token")
	}

	return tokens.AccessToken, nil
}

// Vehicles fetches the raw state records of all vehicles on the account:
// the garage listing, then one status document per VIN.
func (c *Client) Vehicles(ctx context.Context) ([]VehicleRecord, error) {
	var garage garageResponse
	if err := c.getJSON(ctx, garagePath, &garage); err != nil {
		return nil, fmt.Errorf("failed to list garage: %w", err)
	}

	records := make([]VehicleRecord, 0, len(garage.Vehicles))
	for _, v := range garage.Vehicles {
		record := VehicleRecord{
			VIN:       v.VIN,
			Nickname:  v.Nickname,
			Model:     v.Specification.Model,
			ModelYear: v.Specification.ModelYear,
		}
		if err := c.getJSON(ctx, fmt.Sprintf(statusPath, v.VIN), &record.Status); err != nil {
			return nil, fmt.Errorf("failed to fetch status for %s: %w", v.VIN, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// newAuthorizedRequest builds a request carrying the bearer token and a
// fresh correlation ID.
func (c *Client) newAuthorizedRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	endpoint, err := c.baseURL.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("error creating URL for %s: %w", path, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", ksuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.GetToken(ctx, tokencache.AccountTokenKey(c.username))
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return req, nil
}

// getJSON performs an authorized GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newAuthorizedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore error

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if c.debug {
		c.logger.Debug().Str("path", path).RawJSON("body", respBody).Msg("Connect API response")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(tokencache.AccountTokenKey(c.username))
		return fmt.Errorf("request to %s: %w", path, ErrAuthDenied)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("non-200 response from %s: %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response from %s: %w", path, err)
	}
	return nil
}
