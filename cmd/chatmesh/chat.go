package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/hupe1980/chatmesh/advisor"
	"github.com/hupe1980/chatmesh/core"
	"github.com/spf13/cobra"
)

func newChatCommand(g *globalFlags) *cobra.Command {
	var (
		message string
		tools   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Long:  "Run an interactive chat session, or send a single message with --message.",
		Example: strings.Join([]string{
			"  chatmesh chat",
			"  chatmesh chat --memory file --conversation thesis",
			"  chatmesh chat --rag --audience 硕士生 -M \"如何撰写文献综述？\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(ctx, cfg, nil, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			s := &chatSession{
				app:            a,
				modelName:      cfg.Model,
				conversationID: cfg.ConversationID,
				rag:            cfg.RAGEnabled,
				tools:          tools,
				out:            cmd.OutOrStdout(),
			}
			if s.conversationID == "" {
				s.conversationID = core.NewID()
			}
			if message != "" {
				return s.send(ctx, message)
			}
			return s.repl(ctx)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "M", "", "One-shot message")
	cmd.Flags().BoolVar(&tools, "tools", false, "Offer the built-in tools to the model")

	return cmd
}

// chatSession is the state of one terminal conversation.
type chatSession struct {
	app            *app
	modelName      string
	conversationID string
	rag            bool
	tools          bool
	out            io.Writer
}

// send runs one exchange. Tool calls are answered in one piece; the other
// modes stream.
func (s *chatSession) send(ctx context.Context, text string) error {
	orch := s.app.orch
	if s.tools {
		resp, err := orch.ChatWithTools(ctx, s.modelName, text, s.conversationID)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, resp.Text)
		s.report(resp)
		return nil
	}

	var (
		stream *advisor.Stream
		err    error
	)
	if s.rag {
		stream, err = orch.ChatStreamWithRAG(ctx, s.modelName, text, s.conversationID)
	} else {
		stream, err = orch.ChatStream(ctx, s.modelName, text, s.conversationID)
	}
	if err != nil {
		return err
	}
	for chunk, err := range stream.Iter() {
		if err != nil {
			fmt.Fprintln(s.out)
			return err
		}
		fmt.Fprint(s.out, chunk)
	}
	fmt.Fprintln(s.out)
	if resp, _ := stream.Response(); resp != nil {
		s.report(resp)
	}
	return nil
}

func (s *chatSession) report(resp *advisor.Response) {
	if resp.Interrupted {
		fmt.Fprintln(s.out, "[interrupted]")
	}
	for _, d := range resp.Documents {
		fmt.Fprintf(s.out, "  [doc %s %.3f]\n", d.ID, d.Score)
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(s.out, "  [warning] %s\n", w.Error())
	}
}

// command handles a slash command and reports whether the session ends.
func (s *chatSession) command(line string) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return true
	case "/new":
		s.conversationID = core.NewID()
		fmt.Fprintf(s.out, "conversation %s\n", s.conversationID)
	case "/id":
		fmt.Fprintf(s.out, "conversation %s\n", s.conversationID)
	case "/rag":
		s.rag = !s.rag
		fmt.Fprintf(s.out, "rag %v\n", s.rag)
	case "/tools":
		s.tools = !s.tools
		fmt.Fprintf(s.out, "tools %v\n", s.tools)
	case "/model":
		if len(fields) < 2 {
			fmt.Fprintf(s.out, "model %s (available: %s)\n", s.modelName, strings.Join(s.app.registry.Names(), ", "))
			return false
		}
		if _, err := s.app.registry.Get(fields[1]); err != nil {
			fmt.Fprintf(s.out, "%v\n", err)
			return false
		}
		s.modelName = fields[1]
		fmt.Fprintf(s.out, "model %s\n", s.modelName)
	default:
		fmt.Fprintln(s.out, "commands: /new /id /rag /tools /model [name] /exit")
	}
	return false
}

func (s *chatSession) repl(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".chatmesh_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          s.out,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(s.out, "conversation %s with %s (/exit to quit)\n", s.conversationID, s.modelName)
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if s.command(input) {
				return nil
			}
			continue
		}
		if err := s.send(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}
