package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
)

// Client talks to the message backend over HTTP. Text sends are JSON
// posts; file and audio sends are multipart uploads.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a send-boundary client for the given backend base URL
// (e.g. "http://localhost:8090"). A nil httpClient falls back to
// http.DefaultClient; timeout policy belongs to the caller-supplied client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// SendMessage posts a text-only message.
func (c *Client) SendMessage(ctx context.Context, conversationID string, msg OutgoingMessage) (*chat.Message, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/api/conversations/%s/messages", c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// SendMessageWithFiles posts a message with file attachments as a
// multipart upload. The message fields travel in a "message" form part.
func (c *Client) SendMessageWithFiles(ctx context.Context, conversationID string, msg OutgoingMessage, files []FilePayload) (*chat.Message, error) {
	msg.MessageType = chat.TypeFile

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeMessagePart(w, msg); err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := writeFilePart(w, "files", f.Name, f.MIME, f.Data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("transport: close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/api/conversations/%s/messages/files", c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req)
}

// SendMessageWithAudio posts a voice recording. The backend assigns the
// audio message type and resolves the clip URL.
func (c *Client) SendMessageWithAudio(ctx context.Context, conversationID string, msg OutgoingMessage, clip AudioClip) (*chat.Message, error) {
	msg.MessageType = "" // server-assigned for audio

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeMessagePart(w, msg); err != nil {
		return nil, err
	}
	if err := writeFilePart(w, "audio", clip.FileName, clip.MIME, clip.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("transport: close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/api/conversations/%s/messages/audio", c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req)
}

// RecentMessages fetches the backend's recent-message window for a
// conversation, oldest first. Used to re-derive local state after a
// reconnect.
func (c *Client) RecentMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	url := fmt.Sprintf("%s/api/conversations/%s/messages/recent", c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: recent messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var msgs []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("transport: decode recent messages: %w", err)
	}
	return msgs, nil
}

func (c *Client) do(req *http.Request) (*chat.Message, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var msg chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("transport: decode message echo: %w", err)
	}
	return &msg, nil
}

// decodeError converts a non-2xx response into an *APIError, surfacing the
// backend-provided message when the body carries one.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("send failed with status %d", resp.StatusCode),
	}
}

func writeMessagePart(w *multipart.Writer, msg OutgoingMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal message part: %w", err)
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="message"`)
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("transport: create message part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("transport: write message part: %w", err)
	}
	return nil
}

func writeFilePart(w *multipart.Writer, field, name, mime string, data []byte) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	if mime != "" {
		h.Set("Content-Type", mime)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("transport: create file part %s: %w", name, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("transport: write file part %s: %w", name, err)
	}
	return nil
}
