// Package issuerclient speaks to a running issuer over HTTP: it fetches the
// transport key, seals credentials under it and exchanges them for a token.
package issuerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pam-jwt-issuer/go-backend/internal/transportcrypto"
	"pam-jwt-issuer/go-backend/pkg/models"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
)

// StatusError is a non-200 answer from the issuer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("issuer returned status %d", e.Code)
	}
	return fmt.Sprintf("issuer returned status %d: %s", e.Code, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Now     func() time.Time
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: defaultTimeout},
		Now:     time.Now,
	}
}

func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/pubkey", nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Credentials are sealed client-side; Password never leaves the process in
// clear text.
type Credentials struct {
	Username  string
	Password  string
	SSHPubKey string
}

func (c *Client) RequestToken(ctx context.Context, creds Credentials) (models.TokenResponse, error) {
	pub, err := c.PublicKey(ctx)
	if err != nil {
		return models.TokenResponse{}, fmt.Errorf("fetch public key: %w", err)
	}
	payload := models.AuthPayload{
		Username: creds.Username,
		Password: creds.Password,
		TS:       c.now().Unix(),
	}
	if key := strings.TrimSpace(creds.SSHPubKey); key != "" {
		payload.SSHPubKey = &key
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return models.TokenResponse{}, err
	}
	ct, err := transportcrypto.EncryptFor(pub, plaintext)
	clear(plaintext)
	if err != nil {
		return models.TokenResponse{}, fmt.Errorf("seal credentials: %w", err)
	}
	reqBody, err := json.Marshal(models.TokenRequest{CiphertextB64: ct})
	if err != nil {
		return models.TokenResponse{}, err
	}
	raw, err := c.do(ctx, http.MethodPost, "/auth/token", reqBody)
	if err != nil {
		return models.TokenResponse{}, err
	}
	var resp models.TokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.TokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return models.TokenResponse{}, errors.New("issuer returned an empty access token")
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (out []byte, retErr error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		_ = json.Unmarshal(raw, &e)
		return nil, &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	return raw, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
