// Package client is the sync layer: every operation first attempts the
// remote API and, when the transport itself fails, re-executes the same
// contract against a local mirror store. Application-level error responses
// are returned to the caller and never trigger the fallback.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/picshare/picshare/client/localstore"
	"github.com/picshare/picshare/internal/model"
)

const (
	keyImages   = "images"
	keyUsers    = "users"
	keyNotifs   = "notifs"
	keyFollows  = "follows"
	keyReports  = "reports"
	keyActivity = "activity"
)

type Client struct {
	baseURL string
	httpc   *http.Client
	mirror  *localstore.Store
	log     *slog.Logger

	mu          sync.Mutex
	token       string
	currentUser string
}

func New(baseURL, mirrorPath string) (*Client, error) {
	mirror, err := localstore.Open(mirrorPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		mirror:  mirror,
		log:     slog.Default(),
	}, nil
}

func (c *Client) Close() error {
	return c.mirror.Close()
}

// CurrentUser is the display name of the acting user, set by Login/Register
// on either path.
func (c *Client) CurrentUser() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentUser
}

func (c *Client) setSession(token, username string) {
	c.mu.Lock()
	c.token = token
	c.currentUser = username
	c.mu.Unlock()
}

// APIError is an application-level error response. It does not trigger the
// local fallback.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// transportError marks a network-level failure; it is what flips a call onto
// the local path.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransportError(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

// doJSON performs a request and decodes the JSON response into out. A failed
// round trip comes back as a transportError; a non-2xx response as an
// APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	res, err := c.httpc.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(res.Body).Decode(&payload)
		msg := payload.Error
		if msg == "" {
			msg = payload.Message
		}
		return &APIError{Status: res.StatusCode, Message: msg}
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login authenticates against the server; when the server is unreachable it
// verifies the credentials against the local mirror's user list instead.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var res authResponse
	err := c.doJSON(ctx, http.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	}, &res)
	if err == nil {
		if res.User == nil {
			return nil, fmt.Errorf("malformed login response")
		}
		c.setSession(res.Token, res.User.Username)
		return res.User, nil
	}
	if !isTransportError(err) {
		return nil, err
	}
	c.log.Warn("login falling back to local", "error", err)
	return c.loginLocal(email, password)
}

// Register creates an account remotely, or locally when offline. Duplicate
// emails fail on both paths.
func (c *Client) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	var res authResponse
	err := c.doJSON(ctx, http.MethodPost, "/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &res)
	if err == nil {
		if res.User == nil {
			return nil, fmt.Errorf("malformed register response")
		}
		c.setSession(res.Token, res.User.Username)
		return res.User, nil
	}
	if !isTransportError(err) {
		return nil, err
	}
	c.log.Warn("register falling back to local", "error", err)
	return c.registerLocal(username, email, password)
}
