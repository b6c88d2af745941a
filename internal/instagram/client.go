// Package instagram is a thin client for the Graph API endpoints the bot
// uses: sending direct messages, replying to comments and fetching
// comment text.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v12.0"

	// Graph API rejects longer message bodies; oversized replies are
	// split and sent as consecutive chunks.
	messageChunkSize = 1000
)

type Client struct {
	token   string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

type Option func(*Client)

// WithBaseURL overrides the Graph API endpoint, used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func NewClient(token string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendMessage delivers text to a user as one or more direct messages.
// Chunks are sent in order; the first failure aborts the rest and the
// overall result is false.
func (c *Client) SendMessage(ctx context.Context, recipientID, text string) bool {
	for _, chunk := range splitMessage(text, messageChunkSize) {
		payload := map[string]any{
			"recipient":    map[string]string{"id": recipientID},
			"message":      map[string]string{"text": chunk},
			"access_token": c.token,
		}
		if err := c.postJSON(ctx, c.baseURL+"/me/messages", payload); err != nil {
			c.logger.Error("Failed to send message chunk",
				zap.Error(err),
				zap.String("recipient_id", recipientID))
			return false
		}
	}
	return true
}

// ReplyToComment posts text as a threaded reply under a comment, chunked
// the same way as direct messages.
func (c *Client) ReplyToComment(ctx context.Context, commentID, text string) bool {
	endpoint := fmt.Sprintf("%s/%s/replies", c.baseURL, url.PathEscape(commentID))
	for _, chunk := range splitMessage(text, messageChunkSize) {
		form := url.Values{
			"message":      {chunk},
			"access_token": {c.token},
		}
		if err := c.postForm(ctx, endpoint, form); err != nil {
			c.logger.Error("Failed to reply to comment",
				zap.Error(err),
				zap.String("comment_id", commentID))
			return false
		}
	}
	return true
}

// FetchCommentText returns the text of the comment the bot was mentioned in.
func (c *Client) FetchCommentText(ctx context.Context, commentID string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=text&access_token=%s",
		c.baseURL, url.PathEscape(commentID), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build comment request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.apiError("fetch comment", resp)
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode comment: %w", err)
	}
	return body.Text, nil
}

// VerifyToken checks the access token against /me. Run once at startup;
// an expired token should stop the process before it serves traffic.
func (c *Client) VerifyToken(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/me?access_token=%s", c.baseURL, url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build verify request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError("verify token", resp)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError("post", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError("post form", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) apiError(op string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("%s: graph api status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(detail)))
}

// splitMessage cuts text into rune-safe chunks of at most size characters.
func splitMessage(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
