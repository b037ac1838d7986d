package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/seydt/mnemo/pkg/config"
	"github.com/seydt/mnemo/pkg/embedding"
	"github.com/seydt/mnemo/pkg/logger"
	"github.com/seydt/mnemo/pkg/memory"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var (
		configPath  string
		debug       bool
		showVersion bool
	)

	root := &cobra.Command{
		Use:   "mnemo",
		Short: "Conversational memory engine with semantic recall",
		Long: strings.TrimSpace(`mnemo records conversation turns durably and assembles bounded context
from important facts, the recency window, and semantically related past turns.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config file")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand(&configPath))
	root.AddCommand(newChatCommand(&configPath))
	root.AddCommand(newContextCommand(&configPath))
	root.AddCommand(newRecordCommand(&configPath))
	root.AddCommand(newRememberCommand(&configPath))
	root.AddCommand(newFactsCommand(&configPath))
	root.AddCommand(newForgetCommand(&configPath))
	root.AddCommand(newStatusCommand(&configPath))
	root.AddCommand(newVersionCommand())

	return root
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".mnemo", "config.json")
	}
	return filepath.Join(home, ".mnemo", "config.json")
}

// openManager loads config and wires the embedding provider into a memory
// manager. The caller must Close the manager.
func openManager(configPath string) (*memory.Manager, *config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	provider, err := embedding.New(embedding.Config{
		Provider:    cfg.Embedding.Provider,
		APIKey:      cfg.Embedding.APIKey,
		Model:       cfg.Embedding.Model,
		Dimensions:  cfg.Embedding.Dimensions,
		ModelDir:    cfg.Embedding.ModelDir,
		OnnxLibrary: cfg.Embedding.OnnxLibrary,
		IdleUnload:  cfg.Embedding.IdleUnload(),
	})
	if err != nil {
		return nil, nil, err
	}

	mgr, err := memory.NewManager(memory.Config{
		DataDir:      cfg.DataDir(),
		RecentWindow: cfg.Memory.RecentWindow,
		SearchTopK:   cfg.Memory.SearchTopK,
	}, provider)
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	return mgr, cfg, nil
}

func newOnboardCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Write a default config file",
		Example: "  mnemo onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(*configPath); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists: %s\n", *configPath)
				return nil
			}
			if err := config.SaveConfig(*configPath, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", *configPath)
			return nil
		},
	}
}

func newChatCommand(configPath *string) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session that records turns and shows assembled context",
		Long: strings.TrimSpace(`Start an interactive session. Each message you type is answered with the
context mnemo would hand to an agent, then the exchange is recorded.

Session commands:
  /facts             list important facts
  /remember <fact>   store an important fact
  /forget <id>       delete an important fact
  exit               leave the session`),
		Example: "  mnemo chat --author alice",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := openManager(*configPath)
			if err != nil {
				return err
			}
			defer mgr.Close()
			return chatLoop(cmd.Context(), mgr, author)
		},
	}

	cmd.Flags().StringVarP(&author, "author", "a", "User", "Author name recorded on your turns")
	return cmd
}

func chatLoop(ctx context.Context, mgr *memory.Manager, author string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".mnemo_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			fmt.Println("Goodbye!")
			return nil
		case strings.HasPrefix(line, "/"):
			if err := chatSlashCommand(ctx, mgr, line); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			continue
		}

		assembled, err := mgr.GetContext(ctx, line)
		if err != nil {
			fmt.Printf("Error assembling context: %v\n", err)
			continue
		}
		if assembled != "" {
			fmt.Println("--- context ---")
			fmt.Println(assembled)
			fmt.Println("---------------")
		}

		rl.SetPrompt(fmt.Sprintf("%s Assistant: ", appName))
		response, err := rl.Readline()
		rl.SetPrompt(fmt.Sprintf("%s You: ", appName))
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		if err := mgr.AddTurn(ctx, author, line, strings.TrimSpace(response)); err != nil {
			fmt.Printf("Error recording turn: %v\n", err)
		}
	}
}

func chatSlashCommand(ctx context.Context, mgr *memory.Manager, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/facts":
		entries, err := mgr.ListImportant(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No important facts stored.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("  %s  %s\n", e.ID, e.Content)
		}
		return nil
	case "/remember":
		if rest == "" {
			return fmt.Errorf("usage: /remember <fact>")
		}
		id, err := mgr.AddImportant(ctx, rest)
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Println("Already known.")
		} else {
			fmt.Printf("Remembered (%s).\n", id)
		}
		return nil
	case "/forget":
		if rest == "" {
			return fmt.Errorf("usage: /forget <id>")
		}
		deleted, err := mgr.DeleteImportant(ctx, rest)
		if err != nil {
			return err
		}
		if deleted {
			fmt.Println("Forgotten.")
		} else {
			fmt.Printf("No fact with id %s.\n", rest)
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func newContextCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "context <query>",
		Short:   "Print the assembled context for a query",
		Args:    cobra.MinimumNArgs(1),
		Example: "  mnemo context \"what does my cat eat\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := openManager(*configPath)
			if err != nil {
				return err
			}
			defer mgr.Close()

			out, err := mgr.GetContext(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(no context)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newRecordCommand(configPath *string) *cobra.Command {
	var (
		author   string
		input    string
		response string
	)

	cmd := &cobra.Command{
		Use:     "record",
		Short:   "Record one completed exchange",
		Example: "  mnemo record -a alice -m \"my cat loves tuna\" -r \"noted\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("--message is required")
			}
			mgr, _, err := openManager(*configPath)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.AddTurn(cmd.Context(), author, input, response); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Recorded.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&author, "author", "a", "User", "Author of the user side of the exchange")
	cmd.Flags().StringVarP(&input, "message", "m", "", "User message")
	cmd.Flags().StringVarP(&response, "response", "r", "", "Assistant response")
	return cmd
}

func newRememberCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "remember <fact>",
		Short:   "Store an important fact",
		Args:    cobra.MinimumNArgs(1),
		Example: "  mnemo remember \"allergic to peanuts\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := openManager(*configPath)
			if err != nil {
				return err
			}
			defer mgr.Close()

			id, err := mgr.AddImportant(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if id == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Already known.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Remembered (%s).\n", id)
			}
			return nil
		},
	}
}

func newFactsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "facts",
		Short:   "List important facts",
		Example: "  mnemo facts",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := openManager(*configPath)
			if err != nil {
				return err
			}
			defer mgr.Close()

			entries, err := mgr.ListImportant(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No important facts stored.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", e.ID, e.Content)
			}
			return nil
		},
	}
}

func newForgetCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "forget <id>",
		Short:   "Delete an important fact",
		Args:    cobra.ExactArgs(1),
		Example: "  mnemo forget a1b2c3d4",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := openManager(*configPath)
			if err != nil {
				return err
			}
			defer mgr.Close()

			deleted, err := mgr.DeleteImportant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if deleted {
				fmt.Fprintln(cmd.OutOrStdout(), "Forgotten.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "No fact with id %s.\n", args[0])
			}
			return nil
		},
	}
}

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and storage readiness",
		Example: "  mnemo status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config:    %s\n", *configPath)
			fmt.Fprintf(out, "Data dir:  %s\n", cfg.DataDir())
			fmt.Fprintf(out, "Provider:  %s\n", displayProvider(cfg.Embedding.Provider))
			fmt.Fprintf(out, "Window:    %d recent turns, top %d related\n",
				cfg.Memory.RecentWindow, cfg.Memory.SearchTopK)
			if _, err := os.Stat(cfg.DataDir()); err != nil {
				fmt.Fprintln(out, "Storage:   not initialized (records created on first use)")
			} else {
				fmt.Fprintln(out, "Storage:   ready")
			}
			return nil
		},
	}
}

func displayProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "builtin"
	}
	return name
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  mnemo version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
