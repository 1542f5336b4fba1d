// Package telegram delivers messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/event-reminder/backend/internal/messaging"
)

// ErrNoToken is returned when the client has no bot token.
var ErrNoToken = errors.New("telegram bot token not configured")

// Telegram rejects a whole message if any callback payload is longer.
const maxCallbackData = 64

// Config holds the Bot API endpoint and credentials.
type Config struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// Client is a Bot API client implementing messaging.Gateway.
type Client struct {
	config     Config
	directory  Directory
	httpClient *http.Client
}

var _ messaging.Gateway = (*Client)(nil)

// NewClient creates a Bot API client. directory maps internal ids to chats.
func NewClient(config Config, directory Directory) *Client {
	if config.APIURL == "" {
		config.APIURL = "https://api.telegram.org"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config:    config,
		directory: directory,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      any          `json:"chat_id"`
	Text        string       `json:"text"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// SendGroup posts text with one button per action to the group's chat.
func (c *Client) SendGroup(ctx context.Context, groupID int64, text string, actions []messaging.Action) error {
	chatID, err := c.directory.GroupChatID(ctx, groupID)
	if err != nil {
		return err
	}

	req := sendMessageRequest{ChatID: chatID, Text: text}
	if kb := keyboard(actions); kb != nil {
		req.ReplyMarkup = kb
	}
	return c.call(ctx, "sendMessage", req, nil)
}

// SendDirect sends text to the user's private chat.
func (c *Client) SendDirect(ctx context.Context, userID int64, text string) error {
	chatID, err := c.directory.UserChatID(ctx, userID)
	if err != nil {
		return err
	}
	return c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text}, nil)
}

// BotUser is the account behind the token.
type BotUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// GetMe checks the token and returns the bot account.
func (c *Client) GetMe(ctx context.Context) (*BotUser, error) {
	var me BotUser
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func keyboard(actions []messaging.Action) *replyMarkup {
	var rows [][]inlineButton
	for _, a := range actions {
		if len(a.Data) > maxCallbackData {
			slog.Warn("dropping button with oversized payload", "label", a.Label, "size", len(a.Data))
			continue
		}
		rows = append(rows, []inlineButton{{Text: a.Label, CallbackData: a.Data}})
	}
	if len(rows) == 0 {
		return nil
	}
	return &replyMarkup{InlineKeyboard: rows}
}

// call invokes a Bot API method and decodes its result into out if non-nil.
func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	if c.config.Token == "" {
		return ErrNoToken
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, http.MethodPost, method, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, result.Description)
	}

	if out != nil && len(result.Result) > 0 {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// newRequest builds a request for a Bot API method.
func (c *Client) newRequest(ctx context.Context, httpMethod, method string, body io.Reader) (*http.Request, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.config.APIURL, c.config.Token, method)

	req, err := http.NewRequestWithContext(ctx, httpMethod, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}
