package entitlements

import (
	"fmt"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"howett.net/plist"
)

var (
	Metadata = blobs.BlobMetadata{
		Name:       "CSMAGIC_EMBEDDED_ENTITLEMENTS",
		MagicValue: uint32(blobs.MagicEmbeddedEntitlements),
		Decoder:    decoder(blobs.MagicEmbeddedEntitlements),
	}

	DERMetadata = blobs.BlobMetadata{
		Name:       "CSMAGIC_EMBEDDED_DER_ENTITLEMENTS",
		MagicValue: uint32(blobs.MagicEmbeddedDEREntitlements),
		Decoder:    decoder(blobs.MagicEmbeddedDEREntitlements),
	}
)

// Entitlements is an entitlements blob,
// either the XML property list form or
// the DER form.
type Entitlements struct {
	hdr blobs.BlobHeader
	raw []byte
}

// ParsePlist decodes an entitlements
// property list, of any format plist
// supports, into its dictionary.
func ParsePlist(data []byte) (map[string]any, error) {
	var values map[string]any
	if _, err := plist.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode entitlements property list: %w", err)
	}

	if values == nil {
		values = make(map[string]any)
	}

	return values, nil
}

// New builds the XML entitlements blob
// holding values.
func New(values map[string]any) (*Entitlements, error) {
	data, err := plist.MarshalIndent(values, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode entitlements property list: %w", err)
	}

	return wrap(blobs.MagicEmbeddedEntitlements, data), nil
}

// NewFromPlist builds the XML entitlements
// blob from an existing property list. XML
// input is kept byte for byte, any other
// format is re-encoded as XML.
func NewFromPlist(data []byte) (*Entitlements, error) {
	var values map[string]any

	format, err := plist.Unmarshal(data, &values)
	if err != nil {
		return nil, fmt.Errorf("decode entitlements property list: %w", err)
	}

	if format == plist.XMLFormat {
		return wrap(blobs.MagicEmbeddedEntitlements, data), nil
	}

	return New(values)
}

// NewDER builds the DER entitlements
// blob holding values.
func NewDER(values map[string]any) (*Entitlements, error) {
	data, err := EncodeDER(values)
	if err != nil {
		return nil, err
	}

	return wrap(blobs.MagicEmbeddedDEREntitlements, data), nil
}

func wrap(magic blobs.Magic, data []byte) *Entitlements {
	generic := blobs.NewGeneric(magic, data)

	return &Entitlements{
		hdr: blobs.BlobHeader{Magic: magic, Length: generic.Length()},
		raw: generic.Bytes(),
	}
}

// Parse validates raw as either form
// of entitlements blob.
func Parse(raw []byte) (*Entitlements, error) {
	hdr, err := blobs.ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("parse entitlements header: %w", err)
	}

	switch hdr.Magic.Kind() {
	case blobs.KindEntitlements, blobs.KindDEREntitlements:
		return &Entitlements{hdr: hdr, raw: raw[:hdr.Length:hdr.Length]}, nil

	default:
		return nil, fmt.Errorf("%s is not an entitlements blob: %w", hdr.Magic, blobs.ErrMagicMismatch)
	}
}

func decoder(magic blobs.Magic) blobs.BlobDecoder {
	return func(hdr blobs.BlobHeader, raw []byte) (blobs.Blob, error) {
		if hdr.Magic != magic {
			return nil, fmt.Errorf("magic in blob header (%s) doesn't match the expected value (%s): %w", hdr.Magic, magic, blobs.ErrMagicMismatch)
		}

		ent, err := Parse(raw)
		if err != nil {
			return nil, err
		}

		return ent, nil
	}
}

func (ent *Entitlements) Magic() blobs.Magic {
	return ent.hdr.Magic
}

func (ent *Entitlements) Length() uint32 {
	return ent.hdr.Length
}

func (ent *Entitlements) Bytes() []byte {
	return ent.raw
}

// Data returns the encoded entitlements
// following the blob header.
func (ent *Entitlements) Data() []byte {
	return ent.raw[blobs.BlobHeaderSize:]
}

// IsDER reports whether the blob holds
// the DER form of the entitlements.
func (ent *Entitlements) IsDER() bool {
	return ent.hdr.Magic == blobs.MagicEmbeddedDEREntitlements
}

// Values decodes the entitlements
// held by the blob.
func (ent *Entitlements) Values() (map[string]any, error) {
	if ent.IsDER() {
		return DecodeDER(ent.Data())
	}

	return ParsePlist(ent.Data())
}

func (ent *Entitlements) String() string {
	form := "xml"
	if ent.IsDER() {
		form = "der"
	}

	return fmt.Sprintf("Entitlements{form: %s, length: %d}", form, ent.hdr.Length)
}
