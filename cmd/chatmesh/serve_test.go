package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/internal/testutil"
	"github.com/hupe1980/chatmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, m model.Model) *httptest.Server {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{
		"CHATMESH_MODEL":                   m.Info().Name,
		"CHATMESH_RETRIEVAL_REWRITE_CACHE": "false",
	})
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, model.NewRegistry(m), io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(newServer(a).routes())
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, srv *httptest.Server, body string) (int, map[string]any) {
	t.Helper()
	res, err := http.Post(srv.URL+"/v1/chat", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func TestServeChat(t *testing.T) {
	m := testutil.Reply("gpt", "hello there")
	srv := newTestServer(t, m)

	status, out := postChat(t, srv, `{"message":"hi","conversation_id":"c1"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello there", out["text"])
	assert.Equal(t, "c1", out["conversation_id"])

	status, _ = postChat(t, srv, `{"message":"again","conversation_id":"c1"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, m.Requests()[1].Messages, 3)
}

func TestServeChatRetrieveSizeZero(t *testing.T) {
	m := testutil.Reply("gpt", "ok")
	srv := newTestServer(t, m)

	status, _ := postChat(t, srv, `{"message":"hi","conversation_id":"c1"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = postChat(t, srv, `{"message":"again","conversation_id":"c1","retrieve_size":0}`)
	require.Equal(t, http.StatusOK, status)

	assert.Len(t, m.Requests()[1].Messages, 1)
}

func TestServeChatErrors(t *testing.T) {
	srv := newTestServer(t, testutil.Reply("gpt", "x"))

	tests := map[string]struct {
		body   string
		status int
	}{
		"unknown model": {`{"model":"nonexistent-model","message":"hi"}`, http.StatusNotFound},
		"empty message": {`{"message":"  "}`, http.StatusBadRequest},
		"unknown mode":  {`{"message":"hi","mode":"telepathy"}`, http.StatusBadRequest},
		"not json":      {`{`, http.StatusBadRequest},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			status, out := postChat(t, srv, tt.body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestServeModelFailure(t *testing.T) {
	srv := newTestServer(t, testutil.NewScriptedModel("gpt", testutil.Step{Err: testutil.ErrInjected}))

	status, out := postChat(t, srv, `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, out["error"], "model invocation failed")
}

func TestServeModels(t *testing.T) {
	srv := newTestServer(t, testutil.Reply("gpt", "x"))

	res, err := http.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	defer res.Body.Close()

	var out struct {
		Default string   `json:"default"`
		Models  []string `json:"models"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, "gpt", out.Default)
	assert.Equal(t, []string{"gpt"}, out.Models)
}

func TestServeStream(t *testing.T) {
	srv := newTestServer(t, testutil.Reply("gpt", "one two three"))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "count", ConversationID: "c1"}))

	var text strings.Builder
	for {
		var f streamFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == "delta" {
			text.WriteString(f.Text)
			continue
		}
		require.Equal(t, "done", f.Type, f.Error)
		require.NotNil(t, f.Response)
		assert.Equal(t, "one two three", f.Response.Text)
		break
	}
	assert.Equal(t, "one two three", text.String())

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "hi", Model: "nonexistent-model"}))
	var f streamFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, f.Error, "unknown model")
}
