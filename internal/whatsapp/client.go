// Package whatsapp is a thin client for the WhatsApp Business Cloud API.
// Only the two operations the bot needs are implemented: plain text messages
// and document messages (upload then send).
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Sender is the outbound surface the conversation layer depends on.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendDocument(ctx context.Context, to string, data []byte, filename, caption string) error
}

// Options configures a Client.
type Options struct {
	BaseURL       string // e.g. https://graph.facebook.com/v19.0
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// Client talks to the Cloud API over HTTP.
type Client struct {
	opts Options
	http *http.Client
}

// NewClient builds a Cloud API client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: timeout},
	}
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	msg := textMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = body
	return c.postMessage(ctx, msg)
}

type documentMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Document         struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
		Caption  string `json:"caption,omitempty"`
	} `json:"document"`
}

// SendDocument uploads data as media and sends it as a document message.
func (c *Client) SendDocument(ctx context.Context, to string, data []byte, filename, caption string) error {
	mediaID, err := c.uploadMedia(ctx, data, filename)
	if err != nil {
		return err
	}

	msg := documentMessage{MessagingProduct: "whatsapp", To: to, Type: "document"}
	msg.Document.ID = mediaID
	msg.Document.Filename = filename
	msg.Document.Caption = caption
	return c.postMessage(ctx, msg)
}

func (c *Client) postMessage(ctx context.Context, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.opts.BaseURL, c.opts.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("message send returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

func (c *Client) uploadMedia(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if err := w.WriteField("type", "application/pdf"); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	url := fmt.Sprintf("%s/%s/media", c.opts.BaseURL, c.opts.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("media upload returned status %d: %s", resp.StatusCode, detail)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("media upload returned no id")
	}
	return out.ID, nil
}
