package codesign

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/blobs/code_directory"
	"github.com/KatelynHaworth/csblob/codesign/blobs/entitlements"
	"github.com/KatelynHaworth/csblob/codesign/blobs/requirement"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
	"github.com/KatelynHaworth/csblob/codesign/hash"
	"github.com/rs/zerolog"
	"howett.net/plist"
)

// ErrNoHashTypes is returned when a Signer
// is asked to sign without any hash type.
var ErrNoHashTypes = errors.New("at least one hash type is required")

// Options describes the signature a
// Signer produces.
type Options struct {
	Identifier string
	TeamID     string
	Flags      code_directory.CodeDirectoryFlag
	Platform   uint8
	Runtime    code_directory.RuntimeVersion
	PreEncrypt bool

	// PageSize of zero hashes all of
	// the code as a single page.
	PageSize uint32

	// HashTypes lists the hash type of every
	// CodeDirectory, the first is stored in the
	// primary slot and the rest in the alternate
	// code directory slots.
	HashTypes []hash.Type

	ExecSegment code_directory.ExecSegment

	// Requirements is an encoded Requirements
	// blob, when nil an empty set is used.
	Requirements []byte

	// EntitlementsPlist is stored as the XML
	// entitlements blob, kept byte for byte when
	// it is already an XML property list. When
	// set it takes precedence over Entitlements.
	EntitlementsPlist []byte
	Entitlements      map[string]any
	DEREntitlements   bool

	InfoPlist         []byte
	ResourceDirectory []byte
	RepSpecific       []byte

	// SignaturePlaceholder adds an empty
	// BlobWrapper in the CMS signature slot.
	SignaturePlaceholder bool

	// Concurrency bounds the number of
	// pages hashed at once, zero or less
	// means no bound.
	Concurrency int
}

// Signer produces the embedded signature
// SuperBlob for a piece of code.
type Signer struct {
	logger zerolog.Logger
	opts   Options
}

func NewSigner(logger zerolog.Logger, opts Options) (*Signer, error) {
	if len(opts.HashTypes) == 0 {
		return nil, ErrNoHashTypes
	}

	if len(opts.HashTypes) > 1+int(super_blob.SlotAlternativeCodeDirectoryMax) {
		return nil, fmt.Errorf("%d hash types requested, at most %d code directories can be stored", len(opts.HashTypes), 1+super_blob.SlotAlternativeCodeDirectoryMax)
	}

	for _, hashType := range opts.HashTypes {
		if _, err := hash.DigestLength(hashType); err != nil {
			return nil, err
		}
	}

	if opts.InfoPlist != nil {
		var discard any
		if _, err := plist.Unmarshal(opts.InfoPlist, &discard); err != nil {
			return nil, fmt.Errorf("decode Info.plist: %w", err)
		}
	}

	return &Signer{
		logger: logger.With().Str("identifier", opts.Identifier).Logger(),
		opts:   opts,
	}, nil
}

// specialBlobs returns the blobs stored in the
// signature alongside the code directories,
// keyed by the special slot their hash is
// recorded in.
func (signer *Signer) specialBlobs() (map[super_blob.Slot]blobs.Blob, error) {
	special := make(map[super_blob.Slot]blobs.Blob)

	reqs := signer.opts.Requirements
	if reqs == nil {
		set, err := requirement.NewSetMaker().Make()
		if err != nil {
			return nil, fmt.Errorf("make empty requirement set: %w", err)
		}

		reqs = set.Bytes()
	}

	reqSet, err := super_blob.Parse(reqs)
	if err != nil {
		return nil, fmt.Errorf("parse requirement set: %w", err)
	} else if reqSet.Magic() != blobs.MagicRequirements {
		return nil, fmt.Errorf("requirement set has magic %s: %w", reqSet.Magic(), blobs.ErrMagicMismatch)
	}

	special[super_blob.SlotRequirements] = reqSet

	values := signer.opts.Entitlements
	if signer.opts.EntitlementsPlist != nil {
		ent, err := entitlements.NewFromPlist(signer.opts.EntitlementsPlist)
		if err != nil {
			return nil, err
		}

		special[super_blob.SlotEntitlements] = ent

		if values, err = ent.Values(); err != nil {
			return nil, err
		}
	} else if values != nil {
		ent, err := entitlements.New(values)
		if err != nil {
			return nil, err
		}

		special[super_blob.SlotEntitlements] = ent
	}

	if values != nil && signer.opts.DEREntitlements {
		der, err := entitlements.NewDER(values)
		if err != nil {
			return nil, err
		}

		special[super_blob.SlotDerEntitlements] = der
	}

	return special, nil
}

// Sign hashes the first codeLimit bytes of code
// and assembles the embedded signature.
func (signer *Signer) Sign(ctx context.Context, code io.ReaderAt, codeLimit uint64) (*super_blob.SuperBlob, error) {
	special, err := signer.specialBlobs()
	if err != nil {
		return nil, err
	}

	maker := super_blob.NewMaker(blobs.MagicEmbeddedSignature)
	for slot, blob := range special {
		maker.AddBlob(slot, blob)
	}

	for i, hashType := range signer.opts.HashTypes {
		slot := super_blob.SlotCodeDirectory
		if i > 0 {
			if slot, err = super_blob.AlternativeCodeDirectorySlot(i - 1); err != nil {
				return nil, err
			}
		}

		cd, err := signer.codeDirectory(ctx, hashType, code, codeLimit, special)
		if err != nil {
			return nil, fmt.Errorf("build %s code directory: %w", hashType, err)
		}

		cdHash, _ := cd.CDHash()
		signer.logger.Debug().
			Stringer("hash_type", hashType).
			Stringer("slot", slot).
			Stringer("version", cd.Version()).
			Int("code_slots", cd.CodeSlots()).
			Hex("cdhash", cdHash).
			Msg("Built code directory")

		maker.AddBlob(slot, cd)
	}

	if signer.opts.SignaturePlaceholder {
		maker.AddBlob(super_blob.SlotSignature, blobs.NewGeneric(blobs.MagicBlobWrapper, nil))
	}

	signature, err := maker.Make()
	if err != nil {
		return nil, fmt.Errorf("make embedded signature: %w", err)
	}

	signer.logger.Info().Uint32("length", signature.Length()).Int("blobs", signature.Count()).Msg("Assembled embedded signature")
	return signature, nil
}

func (signer *Signer) codeDirectory(ctx context.Context, hashType hash.Type, code io.ReaderAt, codeLimit uint64, special map[super_blob.Slot]blobs.Blob) (*code_directory.CodeDirectory, error) {
	builder, err := code_directory.NewBuilder(hashType)
	if err != nil {
		return nil, err
	}

	if err = builder.SetPageSize(signer.opts.PageSize); err != nil {
		return nil, err
	}

	builder.SetIdentifier(signer.opts.Identifier)
	builder.SetTeamID(signer.opts.TeamID)
	builder.SetFlags(signer.opts.Flags)
	builder.SetPlatform(signer.opts.Platform)
	builder.SetRuntime(signer.opts.Runtime)
	builder.SetPreEncrypt(signer.opts.PreEncrypt)
	builder.SetExecSegment(signer.opts.ExecSegment)
	builder.SetExecLength(codeLimit)

	files := map[super_blob.Slot][]byte{
		super_blob.SlotInfo:        signer.opts.InfoPlist,
		super_blob.SlotResourceDir: signer.opts.ResourceDirectory,
		super_blob.SlotRepSpecific: signer.opts.RepSpecific,
	}

	for slot, data := range files {
		if data == nil {
			continue
		}

		if err = builder.HashSpecialSlot(int(slot), data); err != nil {
			return nil, fmt.Errorf("hash %s: %w", slot, err)
		}
	}

	for slot, blob := range special {
		if err = builder.HashSpecialSlot(int(slot), blob.Bytes()); err != nil {
			return nil, fmt.Errorf("hash %s: %w", slot, err)
		}
	}

	if err = builder.HashCode(ctx, code, signer.opts.Concurrency); err != nil {
		return nil, err
	}

	return builder.Build(0)
}

// BestCodeDirectory returns the CodeDirectory of
// signature whose hash type has the highest
// priority.
func BestCodeDirectory(signature *super_blob.SuperBlob) (*code_directory.CodeDirectory, error) {
	var best *code_directory.CodeDirectory

	for _, index := range signature.Indexes() {
		if !index.Type.IsCodeDirectory() {
			continue
		}

		raw, err := signature.Blob(index.Position())
		if err != nil {
			return nil, err
		}

		cd, err := code_directory.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", index.Type, err)
		}

		if best == nil || cd.HashType().Priority() > best.HashType().Priority() {
			best = cd
		}
	}

	if best == nil {
		return nil, fmt.Errorf("code directory: %w", super_blob.ErrSlotNotFound)
	}

	return best, nil
}

// ParseSignature parses an embedded or
// detached signature SuperBlob.
func ParseSignature(raw []byte) (*super_blob.SuperBlob, error) {
	hdr, err := blobs.ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signature header: %w", err)
	}

	switch hdr.Magic.Kind() {
	case blobs.KindEmbeddedSignature, blobs.KindEmbeddedSignatureOld, blobs.KindDetachedSignature:
		return super_blob.Parse(raw)

	default:
		return nil, fmt.Errorf("%s is not a signature: %w", hdr.Magic, blobs.ErrUnknownMagic)
	}
}
