package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"merch-storefront/internal/order"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// DefaultEventType is the repository_dispatch event the order workflow listens for.
const DefaultEventType = "new_order"

// GitHubConfig configures a GitHubDispatch.
type GitHubConfig struct {
	Owner     string
	Repo      string
	Token     string // Fine-grained token with contents:write on the repo
	EventType string // Default: new_order
	BaseURL   string // Default: https://api.github.com
	Client    *http.Client
}

// GitHubDispatch triggers a repository_dispatch event whose client_payload
// is the order. A workflow in the target repo records it (issue, sheet, mail).
// GitHub answers 204 with no body on success.
type GitHubDispatch struct {
	endpoint  string
	token     string
	eventType string
	client    *http.Client
}

// NewGitHubDispatch validates cfg and creates a GitHubDispatch.
func NewGitHubDispatch(cfg GitHubConfig) (*GitHubDispatch, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github owner and repo are required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultGitHubAPI
	}
	eventType := cfg.EventType
	if eventType == "" {
		eventType = DefaultEventType
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &GitHubDispatch{
		endpoint:  fmt.Sprintf("%s/repos/%s/%s/dispatches", strings.TrimSuffix(base, "/"), cfg.Owner, cfg.Repo),
		token:     cfg.Token,
		eventType: eventType,
		client:    client,
	}, nil
}

type dispatchRequest struct {
	EventType     string         `json:"event_type"`
	ClientPayload *order.Payload `json:"client_payload"`
}

// Deliver implements order.Intake.
func (g *GitHubDispatch) Deliver(ctx context.Context, p *order.Payload) (*order.Ack, error) {
	body, err := json.Marshal(dispatchRequest{EventType: g.eventType, ClientPayload: p})
	if err != nil {
		return nil, fmt.Errorf("marshaling dispatch: %w", err)
	}

	h := http.Header{}
	h.Set("Accept", "application/vnd.github+json")
	h.Set("Authorization", "Bearer "+g.token)
	h.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := post(ctx, g.client, g.endpoint, body, h)
	if err != nil {
		return nil, err
	}
	return &order.Ack{Acknowledged: true, Status: resp.status, Reference: p.OrderID}, nil
}
