// ABOUTME: Tests for the HTTP bot API client using httptest servers
// ABOUTME: Covers method calls, error mapping, long-poll translation, and uploads

package protocol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewHTTPClient("test-token", WithAPIBase(srv.URL))
}

func writeResult(w http.ResponseWriter, result any) {
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func TestGetMe(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/bottest-token/getMe"))
		writeResult(w, map[string]any{"id": 42, "username": "support_bot", "first_name": "Support"})
	})

	id, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.ID)
	assert.Equal(t, "support_bot", id.Username)
}

func TestGetMeUnauthorized(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 401, "description": "Unauthorized",
		})
	})

	_, err := client.GetMe(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetUpdatesTranslation(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, float64(7), params["offset"])

		writeResult(w, []map[string]any{
			{
				"update_id": 7,
				"message": map[string]any{
					"message_id": 1,
					"chat":       map[string]any{"id": 100, "type": "private"},
					"from":       map[string]any{"id": 200, "first_name": "Alice"},
					"text":       "hello",
				},
			},
			{
				"update_id": 8,
				"message": map[string]any{
					"message_id":     2,
					"chat":           map[string]any{"id": 100, "type": "private"},
					"media_group_id": "album-1",
					"caption":        "pics",
					"photo": []map[string]any{
						{"file_id": "small", "width": 90, "height": 90},
						{"file_id": "big", "width": 800, "height": 600},
					},
				},
			},
		})
	})

	updates, err := client.GetUpdates(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	text := updates[0].Message
	assert.Equal(t, KindText, text.Kind)
	assert.Equal(t, int64(100), text.ChatID)
	assert.Equal(t, "hello", text.Text)
	assert.Equal(t, int64(200), text.From.ID)

	photo := updates[1].Message
	assert.Equal(t, KindPhoto, photo.Kind)
	assert.Equal(t, "album-1", photo.AlbumID)
	assert.Equal(t, "big", photo.File.FileID)
	assert.Equal(t, "pics", photo.Caption)
}

func TestSendText(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"))
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, float64(-100), params["chat_id"])
		assert.Equal(t, float64(5), params["message_thread_id"])
		assert.Equal(t, "MarkdownV2", params["parse_mode"])
		writeResult(w, map[string]any{"message_id": 77})
	})

	id, err := client.SendText(context.Background(), TextParams{
		ChatID: -100, ThreadID: 5, Text: "hi", ParseMode: "MarkdownV2",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
}

func TestSendPhotoUpload(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, "3", r.FormValue("chat_id"))
		assert.Equal(t, "cap", r.FormValue("caption"))

		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "pic.jpg", header.Filename)
		writeResult(w, map[string]any{"message_id": 9})
	})

	id, err := client.SendPhoto(context.Background(), FileParams{
		ChatID: 3, Data: []byte{0xFF, 0xD8}, Filename: "pic.jpg", Caption: "cap",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestSendPhotoByFileID(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "remote-id", params["photo"])
		writeResult(w, map[string]any{"message_id": 10})
	})

	id, err := client.SendPhoto(context.Background(), FileParams{ChatID: 3, FileID: "remote-id"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)
}

func TestDownloadFile(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "getFile") {
			writeResult(w, map[string]any{"file_path": "photos/file_1.jpg"})
			return
		}
		assert.True(t, strings.HasSuffix(r.URL.Path, "/file/bottest-token/photos/file_1.jpg"))
		w.Write([]byte("image-bytes"))
	})

	data, err := client.DownloadFile(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestCreateForumTopic(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "⏳ Alice (@alice)", params["name"])
		writeResult(w, map[string]any{"message_thread_id": 321})
	})

	threadID, err := client.CreateForumTopic(context.Background(), -100, "⏳ Alice (@alice)")
	require.NoError(t, err)
	assert.Equal(t, int64(321), threadID)
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	_, client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 400, "description": "Bad Request: chat not found",
		})
	})

	_, err := client.SendText(context.Background(), TextParams{ChatID: 1, Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
