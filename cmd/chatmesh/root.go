package main

import (
	"fmt"
	"strings"

	"github.com/hupe1980/chatmesh/config"
	"github.com/spf13/cobra"
)

// globalFlags override environment configuration when set.
type globalFlags struct {
	model        string
	conversation string
	memory       string
	memoryRoot   string
	redisURL     string
	rag          bool
	audience     string
	retrieveSize int
	logLevel     string
	logFormat    string
}

func buildRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "chatmesh",
		Short: "Multi-turn chat with memory, retrieval and tools",
		Long: strings.TrimSpace(`chatmesh holds conversations with a selectable language model.

History is kept in process memory, local files or redis; the RAG mode augments
prompts with documents filtered by target audience.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&g.model, "model", "m", "", "Model name (CHATMESH_MODEL)")
	pf.StringVarP(&g.conversation, "conversation", "c", "", "Conversation id; empty starts a new one (CHATMESH_CONVERSATION_ID)")
	pf.StringVar(&g.memory, "memory", "", "Memory backend: inmemory, file or redis (CHATMESH_MEMORY_BACKEND)")
	pf.StringVar(&g.memoryRoot, "memory-root", "", "Directory of the file backend (CHATMESH_MEMORY_FILE_ROOT)")
	pf.StringVar(&g.redisURL, "redis-url", "", "Redis URL of the redis backend (CHATMESH_MEMORY_REDIS_URL)")
	pf.BoolVar(&g.rag, "rag", false, "Augment prompts with retrieved documents (CHATMESH_RAG_ENABLED)")
	pf.StringVar(&g.audience, "audience", "", "Target audience for retrieved documents (CHATMESH_TARGET_AUDIENCE)")
	pf.IntVar(&g.retrieveSize, "retrieve-size", 0, "History turns sent with each request (CHATMESH_RETRIEVE_SIZE)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (CHATMESH_LOG_LEVEL)")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text, json or console (CHATMESH_LOG_FORMAT)")

	root.AddCommand(newChatCommand(g))
	root.AddCommand(newServeCommand(g))
	root.AddCommand(newModelsCommand(g))

	return root
}

// load reads the environment and applies the flags that were set.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := g.apply(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *globalFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("model") {
		cfg.Model = g.model
	}
	if changed("conversation") {
		cfg.ConversationID = g.conversation
	}
	if changed("memory") {
		if err := cfg.Memory.Backend.UnmarshalText([]byte(g.memory)); err != nil {
			return err
		}
	}
	if changed("memory-root") {
		cfg.Memory.FileRoot = g.memoryRoot
	}
	if changed("redis-url") {
		cfg.Memory.RedisURL = g.redisURL
	}
	if changed("rag") {
		cfg.RAGEnabled = g.rag
	}
	if changed("audience") {
		cfg.TargetAudience = g.audience
	}
	if changed("retrieve-size") {
		cfg.RetrieveSize = g.retrieveSize
	}
	if changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	return nil
}

func newModelsCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models that can be selected",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			for _, name := range newRegistry(cfg).Names() {
				marker := " "
				if name == cfg.Model {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}
