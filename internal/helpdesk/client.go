// Package helpdesk implements the ticketing platform's REST API client.
// The API shape follows the Chatwoot account-scoped endpoints: contacts,
// conversations and conversation messages, authenticated with a static
// api_access_token header.
package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticketbridge/internal/domain"
	"ticketbridge/internal/retry"
)

const authHeader = "api_access_token"

// Client talks to one helpdesk account and inbox.
type Client struct {
	baseURL   string
	token     string
	accountID int
	inboxID   int
	http      *http.Client
	retryCfg  retry.Config
	logger    *slog.Logger
}

type Options struct {
	BaseURL   string
	APIToken  string
	AccountID int
	InboxID   int
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("helpdesk base URL is required")
	}
	if opts.APIToken == "" {
		return nil, fmt.Errorf("helpdesk API token is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.APIToken,
		accountID: opts.AccountID,
		inboxID:   opts.InboxID,
		http:      &http.Client{Timeout: timeout},
		retryCfg:  retry.APIPreset(),
		logger:    opts.Logger,
	}, nil
}

// statusError marks an HTTP status the caller should not retry.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("helpdesk returned %d: %s", e.status, e.body)
}

func (e *statusError) retryable() bool {
	return e.status >= 500 || e.status == http.StatusTooManyRequests
}

// CreateContact registers a chat user as a helpdesk contact attached to the
// configured inbox. The identifier must be stable per user so repeat calls
// dedupe on the helpdesk side.
func (c *Client) CreateContact(ctx context.Context, name, identifier string) (*domain.CustomerRecord, error) {
	payload := map[string]any{
		"inbox_id":   c.inboxID,
		"name":       name,
		"identifier": identifier,
	}

	var resp struct {
		Payload struct {
			Contact struct {
				ID             int `json:"id"`
				ContactInboxes []struct {
					SourceID string `json:"source_id"`
				} `json:"contact_inboxes"`
			} `json:"contact"`
		} `json:"payload"`
	}

	url := fmt.Sprintf("%s/api/v1/accounts/%d/contacts", c.baseURL, c.accountID)
	if err := c.do(ctx, "create contact", http.MethodPost, url, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Payload.Contact.ID == 0 {
		return nil, fmt.Errorf("helpdesk contact response missing id")
	}

	record := &domain.CustomerRecord{
		ContactID: resp.Payload.Contact.ID,
		CreatedAt: time.Now().UTC(),
	}
	if len(resp.Payload.Contact.ContactInboxes) > 0 {
		record.SourceID = resp.Payload.Contact.ContactInboxes[0].SourceID
	}
	return record, nil
}

// CreateConversation opens a conversation for the contact and posts the
// summary as its first message.
func (c *Client) CreateConversation(ctx context.Context, contact domain.CustomerRecord, summary string) (*domain.HelpdeskConversation, error) {
	payload := map[string]any{
		"inbox_id":   c.inboxID,
		"contact_id": contact.ContactID,
		"status":     "open",
	}
	if contact.SourceID != "" {
		payload["source_id"] = contact.SourceID
	}

	var resp struct {
		ID        int `json:"id"`
		DisplayID int `json:"display_id"`
	}

	url := fmt.Sprintf("%s/api/v1/accounts/%d/conversations", c.baseURL, c.accountID)
	if err := c.do(ctx, "create conversation", http.MethodPost, url, payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == 0 {
		return nil, fmt.Errorf("helpdesk conversation response missing id")
	}

	conv := &domain.HelpdeskConversation{
		ID:         strconv.Itoa(resp.ID),
		FriendlyID: fmt.Sprintf("#%d", resp.DisplayID),
	}
	if resp.DisplayID == 0 {
		conv.FriendlyID = "#" + conv.ID
	}

	if summary != "" {
		if err := c.CreateMessage(ctx, conv.ID, summary); err != nil {
			return nil, fmt.Errorf("conversation %s created but summary not posted: %w", conv.ID, err)
		}
	}
	return conv, nil
}

// CreateMessage appends an incoming (customer-side) message to a
// conversation.
func (c *Client) CreateMessage(ctx context.Context, conversationID, content string) error {
	payload := map[string]any{
		"content":      content,
		"message_type": "incoming",
	}
	url := fmt.Sprintf("%s/api/v1/accounts/%d/conversations/%s/messages", c.baseURL, c.accountID, conversationID)
	return c.do(ctx, "create message", http.MethodPost, url, payload, nil)
}

// Ping verifies the base URL and token by fetching the token's profile.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, c.baseURL+"/api/v1/profile", nil, nil)
}

// do runs one API call with retries on network errors and 5xx responses.
// Client errors (4xx except 429) fail immediately.
func (c *Client) do(ctx context.Context, name, method, url string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", name, err)
		}
	}

	return retry.Do(ctx, c.logger, name, c.retryCfg, func(ctx context.Context) error {
		err := c.once(ctx, method, url, body, out)
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *Client) once(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set(authHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(data))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return &statusError{status: resp.StatusCode, body: detail}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
