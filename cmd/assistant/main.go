package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"navgurukul.org/assistant/internal/auth"
	"navgurukul.org/assistant/internal/config"
	"navgurukul.org/assistant/internal/logger"
	"navgurukul.org/assistant/internal/store"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dbPath      string
	sessionFile string
	mock        bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:          "assistant",
		Short:        "NavGurukul AI Assistant",
		Long:         "Chat with the NavGurukul policy and FAQ assistant, manage local accounts, or run the HTTP server.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (overrides DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&g.sessionFile, "session-file", "", "file holding the current session token (default ~/.assistant/session)")
	cmd.PersistentFlags().BoolVar(&g.mock, "mock", false, "use the canned completion backend instead of Gemini")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newUserCmd(g))
	cmd.AddCommand(newChatCmd(g))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "assistant %s (commit: %s)\n", Version, Commit)
		},
	}
}

// loadConfig reads the environment and applies command-line overrides.
func (g *globalFlags) loadConfig() config.Config {
	config.LoadConfig()
	cfg := config.AppConfig
	if g.dbPath != "" {
		cfg.DatabaseURL = g.dbPath
	}
	if g.mock {
		cfg.UseMockLLM = true
	}
	return cfg
}

func (g *globalFlags) logger(cfg config.Config) (*logger.Logger, error) {
	if !g.verbose {
		return logger.Nop(), nil
	}
	return logger.New(cfg.AppEnv, cfg.LogLevel)
}

func (g *globalFlags) tokenFile() (auth.TokenFile, error) {
	if g.sessionFile != "" {
		return auth.TokenFile{Path: g.sessionFile}, nil
	}
	return auth.DefaultTokenFile()
}

// openCredentials opens the credential store without touching the completion backend.
func (g *globalFlags) openCredentials() (*auth.CredentialStore, func(), error) {
	cfg := g.loadConfig()
	log, err := g.logger(cfg)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		db.Close()
		log.Sync()
	}
	return auth.NewCredentialStore(db, log), closeFn, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
