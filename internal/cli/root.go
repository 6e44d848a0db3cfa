package cli

import (
	"log/slog"
	"os"

	"github.com/me/gridshift/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking GRIDSHIFT_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GRIDSHIFT_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the gridshift CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gridshift",
		Short: "gridshift is a carbon-aware job orchestrator",
		Long:  "gridshift submits compute jobs and shows how the carbon-aware scheduler decided to run them.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "gridshift server URL (or GRIDSHIFT_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newListCmd(),
		newExplainCmd(),
		newHealthCmd(),
	)

	return root
}
