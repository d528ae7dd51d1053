package sign

import (
	"errors"
	"fmt"

	"github.com/KatelynHaworth/csblob/config"
	. "github.com/KatelynHaworth/csblob/internal/cmd/globals"
	"github.com/KatelynHaworth/csblob/sign/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	SignCmd = &cobra.Command{
		Use:     "sign [file...]",
		Short:   "Sign Mach-O binaries and disk images",
		PreRunE: preRun,
		RunE:    run,
	}

	configFile *string
	hashTypes  *[]string
	output     *string

	errNoTargets = errors.New("no targets to sign, supply files or a configuration")
)

func init() {
	configFile = SignCmd.Flags().StringP("file", "f", "", "Specifies the signing configuration (.json, .yaml, or .yml)")
	hashTypes = SignCmd.Flags().StringSlice("hash-type", config.DefaultHashTypes, "Hash types of the code directories for files given as arguments")
	output = SignCmd.Flags().StringP("output", "o", "", "Writes the signature of a single file given as argument to this path or s3:// URL instead of embedding it")
}

func preRun(_ *cobra.Command, args []string) error {
	if len(*configFile) > 0 {
		Logger.Info().Str("config", *configFile).Msg("Loading signing configuration")

		var err error
		if Config, err = config.LoadConfigurationFromFile(*configFile, config.ConfigFormatFromPath(*configFile)); err != nil {
			return fmt.Errorf("load config from file: %w", err)
		}
	} else {
		Config = new(config.ConfigurationV1)
	}

	if len(*output) > 0 && len(args) != 1 {
		return errors.New("--output can only be used when signing a single file")
	}

	for _, file := range args {
		Config.Targets = append(Config.Targets, config.Target{
			File:      file,
			HashTypes: *hashTypes,
			Output:    *output,
		})
	}

	if len(Config.GetTargets()) == 0 {
		return errNoTargets
	}

	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	group, gCtx := errgroup.WithContext(cmd.Context())

	for _, target := range Config.GetTargets() {
		wLogger := TargetLogger(target)
		wLogger.Info().Msg("Spawning signing worker")

		wkr, err := worker.NewWorker(target, wLogger)
		if err != nil {
			wLogger.Error().Err(err).Msg("Failed to spawn signing worker")
			return fmt.Errorf("spawn worker for %s: %w", target.File, err)
		}

		group.Go(func() error {
			return wkr.Sign(gCtx)
		})
	}

	if err := group.Wait(); err != nil {
		Logger.Error().Err(err).Msg("One or more signing workers failed")
		return err
	}

	Logger.Info().Int("targets", len(Config.GetTargets())).Msg("Signing completed")
	return nil
}
