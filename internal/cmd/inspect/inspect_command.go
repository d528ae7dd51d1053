package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/KatelynHaworth/csblob/codesign"
	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/blobs/requirement"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
	"github.com/KatelynHaworth/csblob/codesign/dmg"
	. "github.com/KatelynHaworth/csblob/internal/cmd/globals"
	"github.com/spf13/cobra"
)

var InspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the code signature blobs of a Mach-O, disk image or detached signature",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

// Signature is a code signature
// found while inspecting a file.
type Signature struct {
	Label string
	Blob  *super_blob.SuperBlob
}

func run(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	signatures, err := FindSignatures(data)
	if err != nil {
		return err
	}

	Logger.Debug().Str("file", args[0]).Int("signatures", len(signatures)).Msg("Found code signatures")

	for _, signature := range signatures {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", signature.Label)
		Describe(cmd.OutOrStdout(), signature.Blob, "  ")
	}

	return nil
}

// FindSignatures returns the signatures stored in
// a disk image, in every architecture of a Mach-O,
// or the signature a file holds on its own.
func FindSignatures(data []byte) ([]Signature, error) {
	if _, err := codesign.InspectDMG(bytes.NewReader(data)); err == nil {
		signature, err := codesign.ReadFromDMG(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read disk image signature: %w", err)
		}

		return []Signature{{Label: "disk image", Blob: signature}}, nil
	} else if !errors.Is(err, dmg.ErrMagicMismatch) && len(data) >= dmg.UDIFResourceFileSize {
		return nil, fmt.Errorf("inspect disk image: %w", err)
	}

	if arches, err := codesign.InspectUniversal(data); err == nil {
		var signatures []Signature
		for _, arch := range arches {
			signature, err := codesign.FindCodeSignature(data[arch.Offset : arch.Offset+arch.Size])
			if errors.Is(err, codesign.ErrNoCodeSignature) {
				Logger.Warn().Stringer("cpu", arch.CPU).Msg("Architecture isn't signed")
				continue
			} else if err != nil {
				return nil, fmt.Errorf("read %s signature: %w", arch.CPU, err)
			}

			signatures = append(signatures, Signature{Label: arch.CPU.String(), Blob: signature})
		}

		if len(signatures) == 0 {
			return nil, codesign.ErrNoCodeSignature
		}

		return signatures, nil
	}

	signature, err := codesign.ParseSignature(data)
	if err != nil {
		return nil, fmt.Errorf("file is not a Mach-O, disk image or signature: %w", err)
	}

	return []Signature{{Label: "signature", Blob: signature}}, nil
}

// Describe writes blob to w, followed by
// every blob nested within it.
func Describe(w io.Writer, blob blobs.Blob, indent string) {
	_, _ = fmt.Fprintf(w, "%s%s\n", indent, blob)

	super, ok := blob.(*super_blob.SuperBlob)
	if !ok {
		return
	}

	for i, index := range super.Indexes() {
		label := index.Type.String()
		if super.Magic() == blobs.MagicRequirements {
			label = requirement.Type(index.Type).String()
		}

		child, err := super.Decode(i)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%s- %s: ERR(%s)\n", indent, label, err)
			continue
		}

		_, _ = fmt.Fprintf(w, "%s- %s:\n", indent, label)
		Describe(w, child, indent+"    ")
	}
}
