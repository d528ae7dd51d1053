package worker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/KatelynHaworth/csblob/codesign"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
	"github.com/KatelynHaworth/csblob/vfs"
	"github.com/blacktop/go-macho/types"
)

// embedInPlace reports whether the signature is
// written back into the target file.
func (worker *Worker) embedInPlace() bool {
	return worker.target.Output == ""
}

func (worker *Worker) signDMG(ctx context.Context, file *vfs.MemoryFile, image *codesign.DMG) (bool, error) {
	worker.logger.Info().Uint64("code_limit", image.CodeLimit).Bool("signed", image.Signed()).Msg("Signing disk image")

	opts := worker.opts
	opts.RepSpecific = image.RepSpecific()

	signer, err := codesign.NewSigner(worker.logger, opts)
	if err != nil {
		return false, fmt.Errorf("create signer: %w", err)
	}

	if worker.signature, err = signer.Sign(ctx, file, image.CodeLimit); err != nil {
		worker.logger.Error().Err(err).Msg("Failed to sign disk image")
		return false, fmt.Errorf("sign disk image: %w", err)
	}

	if !worker.embedInPlace() {
		return false, nil
	}

	if err = codesign.WriteToDMG(worker.signature, file); err != nil {
		return false, fmt.Errorf("write signature to disk image: %w", err)
	}

	return true, nil
}

func (worker *Worker) signMachO(ctx context.Context, file *vfs.MemoryFile) (bool, error) {
	data := file.Bytes()

	arches, err := codesign.InspectUniversal(data)
	if err != nil {
		return false, fmt.Errorf("inspect macho: %w", err)
	}

	signatures := make(map[types.CPU]*super_blob.SuperBlob, len(arches))
	for _, arch := range arches {
		logger := worker.logger.With().Stringer("cpu", arch.CPU).Logger()
		logger.Info().Uint64("offset", arch.Offset).Uint64("code_limit", arch.CodeLimit).Msg("Signing Mach-O")

		if _, exists := signatures[arch.CPU]; exists && !worker.embedInPlace() {
			return false, fmt.Errorf("%s appears more than once, it can't be keyed in a detached signature", arch.CPU)
		}

		opts := worker.opts
		opts.ExecSegment = arch.ExecSegment

		signer, err := codesign.NewSigner(logger, opts)
		if err != nil {
			return false, fmt.Errorf("create signer: %w", err)
		}

		slice := data[arch.Offset : arch.Offset+arch.Size]
		signature, err := signer.Sign(ctx, bytes.NewReader(slice), arch.CodeLimit)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to sign Mach-O")
			return false, fmt.Errorf("sign %s: %w", arch.CPU, err)
		}

		if worker.embedInPlace() {
			if err = codesign.EmbedSignature(slice, signature.Bytes()); err != nil {
				return false, fmt.Errorf("embed %s signature: %w", arch.CPU, err)
			}
		}

		signatures[arch.CPU] = signature
		worker.signature = signature
	}

	if worker.embedInPlace() {
		if _, err = file.WriteAt(data, 0); err != nil {
			return false, fmt.Errorf("update file: %w", err)
		}

		return true, nil
	}

	if len(arches) > 1 {
		if worker.signature, err = codesign.MakeDetached(signatures); err != nil {
			return false, err
		}
	}

	return false, nil
}
