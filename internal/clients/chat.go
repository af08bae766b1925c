package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

func jsonReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// ChatResponder is the external AI responder the activity's chat widget
// talks to.
type ChatResponder interface {
	Respond(ctx context.Context, userID, message string) (string, error)
}

type ChatClient struct {
	baseURL string
	http    *http.Client
}

func NewChatClient(baseURL string) *ChatClient {
	return &ChatClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ChatClient) Respond(ctx context.Context, userID, message string) (string, error) {
	body, err := json.Marshal(map[string]string{"user_id": userID, "message": message})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat responder: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat responder: status %d", resp.StatusCode)
	}

	var out struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chat responder: decode: %w", err)
	}
	return out.Reply, nil
}
