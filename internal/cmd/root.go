package cmd

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"

	. "github.com/KatelynHaworth/csblob/internal/cmd/globals"
	"github.com/KatelynHaworth/csblob/internal/cmd/inspect"
	"github.com/KatelynHaworth/csblob/internal/cmd/sign"
	"github.com/spf13/cobra"
)

var (
	rootCmd = cobra.Command{
		Use:               "csblob",
		Version:           "devel",
		Short:             "Build, embed and inspect Apple code signatures from any platform",
		PersistentPreRun:  preRun,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	verbose *bool
)

func init() {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		rootCmd.Version = buildInfo.Main.Version
	}

	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enables logging of debug level logs by the utility")

	rootCmd.AddCommand(sign.SignCmd, inspect.InspectCmd)
}

func preRun(_ *cobra.Command, _ []string) {
	SetVerbose(*verbose)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		Logger.Fatal().Err(err).Msg("Utility encountered a fatal error")
	}
}
