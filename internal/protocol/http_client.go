// ABOUTME: HTTP implementation of Client against the bot API
// ABOUTME: JSON method calls, multipart uploads, and long-poll update translation

package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// HTTPClient talks to the bot API over HTTPS on behalf of one bot token.
type HTTPClient struct {
	token   string
	apiBase string
	http    *http.Client
	logger  *slog.Logger
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithAPIBase overrides the API base URL, used by tests.
func WithAPIBase(base string) HTTPClientOption {
	return func(c *HTTPClient) { c.apiBase = base }
}

// NewHTTPClient creates a client for the given bot token.
func NewHTTPClient(token string, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		token:   token,
		apiBase: defaultAPIBase,
		// No overall timeout: long-poll requests set their own deadline.
		http:   &http.Client{},
		logger: slog.Default().With("component", "protocol"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *HTTPClient) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
}

// call posts params as JSON to an API method and decodes the result.
func (c *HTTPClient) call(ctx context.Context, method string, params any, result any) error {
	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %s params: %w", method, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	return c.decodeResponse(resp, method, result)
}

func (c *HTTPClient) decodeResponse(resp *http.Response, method string, result any) error {
	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !api.OK {
		if api.ErrorCode == http.StatusUnauthorized {
			return fmt.Errorf("%s: %w", method, ErrUnauthorized)
		}
		return fmt.Errorf("%s failed: %s (code %d)", method, api.Description, api.ErrorCode)
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// GetMe validates the credential and returns the bot identity.
func (c *HTTPClient) GetMe(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.call(ctx, "getMe", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// GetUpdates long-polls for updates with update_id greater than or equal
// to offset. The HTTP deadline is padded past the poll timeout.
func (c *HTTPClient) GetUpdates(ctx context.Context, offset int64, timeout int) ([]*Update, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout+10)*time.Second)
	defer cancel()

	params := map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	}
	var raw []wireUpdate
	if err := c.call(reqCtx, "getUpdates", params, &raw); err != nil {
		return nil, err
	}

	updates := make([]*Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, u.translate())
	}
	return updates, nil
}

type sentMessage struct {
	ID int64 `json:"message_id"`
}

// SendText sends a text message.
func (c *HTTPClient) SendText(ctx context.Context, p TextParams) (int64, error) {
	params := map[string]any{
		"chat_id": p.ChatID,
		"text":    p.Text,
	}
	if p.ThreadID != 0 {
		params["message_thread_id"] = p.ThreadID
	}
	if p.ParseMode != "" {
		params["parse_mode"] = p.ParseMode
	}

	var sent sentMessage
	if err := c.call(ctx, "sendMessage", params, &sent); err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (c *HTTPClient) SendPhoto(ctx context.Context, p FileParams) (int64, error) {
	return c.sendFile(ctx, "sendPhoto", "photo", p)
}

func (c *HTTPClient) SendVideo(ctx context.Context, p FileParams) (int64, error) {
	return c.sendFile(ctx, "sendVideo", "video", p)
}

func (c *HTTPClient) SendVoice(ctx context.Context, p FileParams) (int64, error) {
	return c.sendFile(ctx, "sendVoice", "voice", p)
}

func (c *HTTPClient) SendVideoNote(ctx context.Context, p FileParams) (int64, error) {
	return c.sendFile(ctx, "sendVideoNote", "video_note", p)
}

func (c *HTTPClient) SendDocument(ctx context.Context, p FileParams) (int64, error) {
	return c.sendFile(ctx, "sendDocument", "document", p)
}

func (c *HTTPClient) SendAudio(ctx context.Context, p FileParams) (int64, error) {
	return c.sendFile(ctx, "sendAudio", "audio", p)
}

func (c *HTTPClient) SendAnimation(ctx context.Context, p FileParams) (int64, error) {
	return c.sendFile(ctx, "sendAnimation", "animation", p)
}

// sendFile sends media either by platform file id (JSON) or by uploading
// raw bytes (multipart).
func (c *HTTPClient) sendFile(ctx context.Context, method, field string, p FileParams) (int64, error) {
	if p.FileID != "" {
		params := map[string]any{
			"chat_id": p.ChatID,
			field:     p.FileID,
		}
		if p.ThreadID != 0 {
			params["message_thread_id"] = p.ThreadID
		}
		if p.Caption != "" {
			params["caption"] = p.Caption
		}
		if p.ParseMode != "" {
			params["parse_mode"] = p.ParseMode
		}

		var sent sentMessage
		if err := c.call(ctx, method, params, &sent); err != nil {
			return 0, err
		}
		return sent.ID, nil
	}
	return c.uploadFile(ctx, method, field, p)
}

func (c *HTTPClient) uploadFile(ctx context.Context, method, field string, p FileParams) (int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	writeField := func(name, value string) {
		if value != "" {
			mw.WriteField(name, value)
		}
	}
	writeField("chat_id", strconv.FormatInt(p.ChatID, 10))
	if p.ThreadID != 0 {
		writeField("message_thread_id", strconv.FormatInt(p.ThreadID, 10))
	}
	writeField("caption", p.Caption)
	writeField("parse_mode", p.ParseMode)
	if p.Duration > 0 {
		writeField("duration", strconv.Itoa(p.Duration))
	}
	if p.Width > 0 {
		writeField("width", strconv.Itoa(p.Width))
	}
	if p.Height > 0 {
		writeField("height", strconv.Itoa(p.Height))
	}
	if p.Length > 0 {
		writeField("length", strconv.Itoa(p.Length))
	}

	filename := p.Filename
	if filename == "" {
		filename = "file"
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return 0, fmt.Errorf("building %s upload: %w", method, err)
	}
	if _, err := fw.Write(p.Data); err != nil {
		return 0, fmt.Errorf("writing %s upload: %w", method, err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("finalizing %s upload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), &buf)
	if err != nil {
		return 0, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var sent sentMessage
	if err := c.decodeResponse(resp, method, &sent); err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (c *HTTPClient) SendLocation(ctx context.Context, p LocationParams) (int64, error) {
	params := map[string]any{
		"chat_id":   p.ChatID,
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
	}
	if p.ThreadID != 0 {
		params["message_thread_id"] = p.ThreadID
	}

	var sent sentMessage
	if err := c.call(ctx, "sendLocation", params, &sent); err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (c *HTTPClient) SendContact(ctx context.Context, p ContactParams) (int64, error) {
	params := map[string]any{
		"chat_id":      p.ChatID,
		"phone_number": p.PhoneNumber,
		"first_name":   p.FirstName,
	}
	if p.ThreadID != 0 {
		params["message_thread_id"] = p.ThreadID
	}
	if p.LastName != "" {
		params["last_name"] = p.LastName
	}

	var sent sentMessage
	if err := c.call(ctx, "sendContact", params, &sent); err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (c *HTTPClient) SendVenue(ctx context.Context, p VenueParams) (int64, error) {
	params := map[string]any{
		"chat_id":   p.ChatID,
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
		"title":     p.Title,
		"address":   p.Address,
	}
	if p.ThreadID != 0 {
		params["message_thread_id"] = p.ThreadID
	}

	var sent sentMessage
	if err := c.call(ctx, "sendVenue", params, &sent); err != nil {
		return 0, err
	}
	return sent.ID, nil
}

// DownloadFile resolves a file id to its storage path and fetches the bytes.
func (c *HTTPClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &file); err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("getFile: no file path for %s", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// CreateForumTopic opens a new forum thread in chatID.
func (c *HTTPClient) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	var topic struct {
		ThreadID int64 `json:"message_thread_id"`
	}
	params := map[string]any{
		"chat_id": chatID,
		"name":    name,
	}
	if err := c.call(ctx, "createForumTopic", params, &topic); err != nil {
		return 0, err
	}
	return topic.ThreadID, nil
}

// EditForumTopic renames an existing forum thread.
func (c *HTTPClient) EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error {
	params := map[string]any{
		"chat_id":           chatID,
		"message_thread_id": threadID,
		"name":              name,
	}
	return c.call(ctx, "editForumTopic", params, nil)
}

// GetChatMember returns a user's membership record in chatID.
func (c *HTTPClient) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	var member ChatMember
	params := map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}
	if err := c.call(ctx, "getChatMember", params, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

var _ Client = (*HTTPClient)(nil)
