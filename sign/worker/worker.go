package worker

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/KatelynHaworth/csblob/codesign"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
	"github.com/KatelynHaworth/csblob/codesign/dmg"
	"github.com/KatelynHaworth/csblob/config"
	"github.com/KatelynHaworth/csblob/vfs"
	"github.com/rs/zerolog"
)

type Worker struct {
	target config.Target
	opts   codesign.Options
	logger zerolog.Logger
	putter ObjectPutter

	signature *super_blob.SuperBlob
}

func NewWorker(target config.Target, logger zerolog.Logger) (*Worker, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}

	stat, err := os.Stat(target.File)
	switch {
	case err != nil && os.IsNotExist(err):
		return nil, fmt.Errorf("target file doesn't exist: %w", err)

	case err != nil:
		return nil, fmt.Errorf("stat target file: %w", err)

	case stat.IsDir():
		return nil, fmt.Errorf("target file %q is a directory", target.File)
	}

	opts, err := target.SignOptions()
	if err != nil {
		return nil, fmt.Errorf("resolve signing options: %w", err)
	}

	return &Worker{
		target: target,
		opts:   opts,
		logger: logger.With().Str("identifier", opts.Identifier).Logger(),
	}, nil
}

func (worker *Worker) Logger() zerolog.Logger {
	return worker.logger
}

// SetObjectPutter replaces the S3 client used
// for s3:// outputs, by default one is built
// from the default AWS configuration.
func (worker *Worker) SetObjectPutter(putter ObjectPutter) {
	worker.putter = putter
}

// Signature returns the signature produced
// by the last successful call to Sign.
func (worker *Worker) Signature() *super_blob.SuperBlob {
	return worker.signature
}

// Sign signs the target file, embedding the
// signature into it or writing it to the
// configured output.
func (worker *Worker) Sign(ctx context.Context) error {
	stat, err := os.Stat(worker.target.File)
	if err != nil {
		return fmt.Errorf("stat target file: %w", err)
	}

	data, err := os.ReadFile(worker.target.File)
	if err != nil {
		return fmt.Errorf("read target file: %w", err)
	}

	file := vfs.NewMemoryFileFrom(data)

	var modified bool
	if image, err := codesign.InspectDMG(file); err == nil {
		modified, err = worker.signDMG(ctx, file, image)
		if err != nil {
			return err
		}
	} else if isDMGError(err) {
		return fmt.Errorf("inspect disk image: %w", err)
	} else if modified, err = worker.signMachO(ctx, file); err != nil {
		return err
	}

	if modified {
		if err = os.WriteFile(worker.target.File, file.Bytes(), stat.Mode()); err != nil {
			return fmt.Errorf("write signed file: %w", err)
		}

		worker.logger.Info().Str("file", worker.target.File).Uint32("length", worker.signature.Length()).Msg("Embedded signature into file")
		return nil
	}

	if err = worker.writeOutput(ctx, worker.signature.Bytes()); err != nil {
		worker.logger.Error().Err(err).Msg("Failed to write signature")
		return fmt.Errorf("write signature to %s: %w", worker.target.Output, err)
	}

	worker.logger.Info().Str("output", worker.target.Output).Uint32("length", worker.signature.Length()).Msg("Wrote signature")
	return nil
}

// isDMGError reports whether an InspectDMG failure
// means the file is a damaged disk image, rather
// than not being a disk image at all.
func isDMGError(err error) bool {
	return !errors.Is(err, dmg.ErrMagicMismatch) && !errors.Is(err, vfs.ErrNegativeOffset)
}
