// Package credentials talks to the key-management service that issues the
// scoped, revocable access tokens receivers use to fetch protected resources.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Credential is a registered key as listed by the service.
type Credential struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Created is the response to a create call. The secret is only ever returned
// here, the service does not expose it again.
type Created struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// Client is an HTTP client for the key-management API.
type Client struct {
	BaseURL string
	APIKey  string

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		httpClient: newRetryableHTTPClient(3),
	}
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *Client) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("credentials request: %w", err)
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// List returns all registered credentials.
func (c *Client) List(ctx context.Context) ([]Credential, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api-keys", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credentials list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credentials list: unexpected status %d", resp.StatusCode)
	}

	var out []Credential
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("credentials list decode: %w", err)
	}
	return out, nil
}

// Create registers a new credential and returns it together with its secret.
func (c *Client) Create(ctx context.Context, name string, permissions []string) (*Created, error) {
	payload, err := json.Marshal(map[string]any{
		"name":        name,
		"permissions": permissions,
	})
	if err != nil {
		return nil, fmt.Errorf("credentials create marshal: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api-keys", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credentials create: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("credentials create: unexpected status %d", resp.StatusCode)
	}

	out := &Created{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("credentials create decode: %w", err)
	}
	return out, nil
}

// Revoke deletes the credential with the given id.
func (c *Client) Revoke(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api-keys/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("credentials revoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("credentials revoke: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Rotate revokes any existing credential with the given name and issues a
// fresh one, so at most one credential of that purpose is ever valid. The
// new secret is returned.
func (c *Client) Rotate(ctx context.Context, name string, permissions []string) (string, error) {
	existing, err := c.List(ctx)
	if err != nil {
		return "", err
	}

	for _, cred := range existing {
		if cred.Name != name {
			continue
		}
		if err := c.Revoke(ctx, cred.ID); err != nil {
			return "", err
		}
		c.Log().Debug().Str("Method", "Rotate").Str("Name", name).Str("ID", cred.ID).Msg("revoked stale credential")
	}

	created, err := c.Create(ctx, name, permissions)
	if err != nil {
		return "", err
	}

	c.Log().Debug().Str("Method", "Rotate").Str("Name", name).Msg("issued fresh credential")
	return created.Secret, nil
}
