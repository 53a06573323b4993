package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hupe1980/chatmesh"
	"github.com/hupe1980/chatmesh/advisor"
	"github.com/hupe1980/chatmesh/core"
	"github.com/spf13/cobra"
)

func newServeCommand(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP and websocket",
		Long: strings.TrimSpace(`Serve the chat API.

  POST /v1/chat          one exchange, JSON in and out
  GET  /v1/chat/stream   websocket; each request frame is answered with
                         delta frames followed by a done or error frame
  GET  /v1/models        selectable model names
  GET  /healthz          liveness`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, nil, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           newServer(a).routes(),
				ReadHeaderTimeout: cfg.Server.ReadTimeout,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server.listen", "addr", cfg.Server.Addr, "memory", string(cfg.Memory.Backend))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			a.logger.Info("server.shutdown")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (CHATMESH_SERVER_ADDR)")
	return cmd
}

// chatRequest is the body of POST /v1/chat and of each websocket request frame.
type chatRequest struct {
	Model          string `json:"model,omitempty"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Mode           string `json:"mode,omitempty"` // chat (default), rag or tools
	RetrieveSize   *int   `json:"retrieve_size,omitempty"` // nil keeps the configured window
}

// streamFrame is one websocket message sent to the client.
type streamFrame struct {
	Type     string            `json:"type"` // delta, done or error
	Text     string            `json:"text,omitempty"`
	Response *advisor.Response `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type server struct {
	app      *app
	upgrader websocket.Upgrader
}

func newServer(a *app) *server {
	return &server{
		app: a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"default": s.app.cfg.Model, "models": s.app.registry.Names()})
	})
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/chat/stream", s.handleStream)
	return mux
}

func (s *server) normalize(req *chatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message must not be empty")
	}
	if req.Model == "" {
		req.Model = s.app.cfg.Model
	}
	switch req.Mode {
	case "":
		req.Mode = "chat"
		if s.app.cfg.RAGEnabled {
			req.Mode = "rag"
		}
	case "chat", "rag", "tools":
	default:
		return fmt.Errorf("unknown mode %q", req.Mode)
	}
	return nil
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.normalize(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	orch := s.app.orch
	call := withRetrieveSize(req.RetrieveSize)
	var (
		resp *advisor.Response
		err  error
	)
	switch req.Mode {
	case "rag":
		resp, err = orch.ChatWithRAG(r.Context(), req.Model, req.Message, req.ConversationID, call)
	case "tools":
		resp, err = orch.ChatWithTools(r.Context(), req.Model, req.Message, req.ConversationID, call)
	default:
		resp, err = orch.Chat(r.Context(), req.Model, req.Message, req.ConversationID, call)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStream serves request frames sequentially on one connection. A
// client that disconnects mid-reply cancels the model call; the partial
// reply is still persisted.
func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.app.logger.Warn("ws.upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.app.logger.Debug("ws.read_failed", "error", err.Error())
			}
			return
		}
		if err := s.normalize(&req); err != nil {
			if conn.WriteJSON(streamFrame{Type: "error", Error: err.Error()}) != nil {
				return
			}
			continue
		}
		if err := s.stream(ctx, conn, req); err != nil {
			s.app.logger.Debug("ws.write_failed", "error", err.Error())
			return
		}
	}
}

// stream answers one request frame. Only write failures are returned.
func (s *server) stream(ctx context.Context, conn *websocket.Conn, req chatRequest) error {
	orch := s.app.orch
	call := withRetrieveSize(req.RetrieveSize)

	if req.Mode == "tools" {
		resp, err := orch.ChatWithTools(ctx, req.Model, req.Message, req.ConversationID, call)
		if err != nil {
			return conn.WriteJSON(streamFrame{Type: "error", Error: err.Error()})
		}
		if err := conn.WriteJSON(streamFrame{Type: "delta", Text: resp.Text}); err != nil {
			return err
		}
		return conn.WriteJSON(streamFrame{Type: "done", Response: resp})
	}

	var (
		stream *advisor.Stream
		err    error
	)
	if req.Mode == "rag" {
		stream, err = orch.ChatStreamWithRAG(ctx, req.Model, req.Message, req.ConversationID, call)
	} else {
		stream, err = orch.ChatStream(ctx, req.Model, req.Message, req.ConversationID, call)
	}
	if err != nil {
		return conn.WriteJSON(streamFrame{Type: "error", Error: err.Error()})
	}

	for chunk, err := range stream.Iter() {
		if err != nil {
			return conn.WriteJSON(streamFrame{Type: "error", Error: err.Error()})
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(streamFrame{Type: "delta", Text: chunk}); err != nil {
			return err
		}
	}
	resp, _ := stream.Response()
	return conn.WriteJSON(streamFrame{Type: "done", Response: resp})
}

func withRetrieveSize(n *int) func(o *chatmesh.CallOptions) {
	return func(o *chatmesh.CallOptions) {
		if n != nil {
			o.RetrieveSize = *n
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownModel):
		return http.StatusNotFound
	case errors.Is(err, core.ErrModelInvocation):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
