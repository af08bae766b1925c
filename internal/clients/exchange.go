// Package clients holds thin HTTP implementations of the external
// collaborators: the credential exchange, the bot's data store, and the AI
// chat responder. Their internals are not this server's concern; transient
// failures surface to the caller as retryable errors and are not retried
// here.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mellivod/Lounge/internal/domain"
)

// CredentialExchanger turns an OAuth2 authorization code into a resolved
// identity. The websocket layer never sees this; it only trusts the session
// token minted afterwards.
type CredentialExchanger interface {
	Exchange(ctx context.Context, code string) (*domain.Identity, error)
}

type ExchangeClient struct {
	baseURL string
	http    *http.Client
}

func NewExchangeClient(baseURL string) *ExchangeClient {
	return &ExchangeClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ExchangeClient) Exchange(ctx context.Context, code string) (*domain.Identity, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credential exchange: status %d", resp.StatusCode)
	}

	var out struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("credential exchange: decode: %w", err)
	}
	return domain.NewIdentity(domain.UserID(out.UserID), out.Username, out.Avatar)
}
