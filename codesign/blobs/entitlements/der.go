package entitlements

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// ErrMalformedDER is returned when DER
// entitlements don't follow the layout
// produced by EncodeDER.
var ErrMalformedDER = errors.New("malformed DER entitlements")

const classApplication = 0x40

var (
	// [APPLICATION 16] { INTEGER 1, dictionary }
	tagEntitlements = asn1.Tag(16 | classApplication).Constructed()

	// [16] { SEQUENCE { UTF8String key, value }... }
	tagDictionary = asn1.Tag(16).Constructed().ContextSpecific()
)

// EncodeDER encodes values using the DER form
// of a property list understood by the kernel.
// Dictionary keys are written in sorted order.
//
// Only dictionaries, arrays, strings, booleans
// and integers can be encoded.
func EncodeDER(values map[string]any) ([]byte, error) {
	var builder cryptobyte.Builder

	builder.AddASN1(tagEntitlements, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(1)
		addDictionary(b, values)
	})

	data, err := builder.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode DER entitlements: %w", err)
	}

	return data, nil
}

func addDictionary(b *cryptobyte.Builder, dict map[string]any) {
	b.AddASN1(tagDictionary, func(b *cryptobyte.Builder) {
		for _, key := range slices.Sorted(maps.Keys(dict)) {
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				addString(b, key)
				addValue(b, key, dict[key])
			})
		}
	})
}

func addString(b *cryptobyte.Builder, s string) {
	b.AddASN1(asn1.UTF8String, func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
}

func addValue(b *cryptobyte.Builder, key string, value any) {
	switch v := value.(type) {
	case bool:
		b.AddASN1Boolean(v)

	case string:
		addString(b, v)

	case int:
		b.AddASN1Int64(int64(v))

	case int64:
		b.AddASN1Int64(v)

	case uint64:
		b.AddASN1Uint64(v)

	case []any:
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			for _, item := range v {
				addValue(b, key, item)
			}
		})

	case map[string]any:
		addDictionary(b, v)

	default:
		b.SetError(fmt.Errorf("entitlement %q has unsupported value type %T", key, value))
	}
}

// DecodeDER is the inverse of EncodeDER.
// Non-negative integers decode as uint64,
// matching the property list decoder.
func DecodeDER(data []byte) (map[string]any, error) {
	var (
		input   = cryptobyte.String(data)
		body    cryptobyte.String
		version int64
	)

	if !input.ReadASN1(&body, tagEntitlements) || !input.Empty() {
		return nil, fmt.Errorf("read entitlements wrapper: %w", ErrMalformedDER)
	}

	if !body.ReadASN1Integer(&version) || version != 1 {
		return nil, fmt.Errorf("read entitlements version: %w", ErrMalformedDER)
	}

	values, err := readDictionary(&body)
	if err != nil {
		return nil, err
	}

	if !body.Empty() {
		return nil, fmt.Errorf("trailing data after entitlements: %w", ErrMalformedDER)
	}

	return values, nil
}

func readDictionary(s *cryptobyte.String) (map[string]any, error) {
	var entries cryptobyte.String
	if !s.ReadASN1(&entries, tagDictionary) {
		return nil, fmt.Errorf("read dictionary: %w", ErrMalformedDER)
	}

	dict := make(map[string]any)
	for !entries.Empty() {
		var (
			pair cryptobyte.String
			key  cryptobyte.String
		)

		if !entries.ReadASN1(&pair, asn1.SEQUENCE) || !pair.ReadASN1(&key, asn1.UTF8String) {
			return nil, fmt.Errorf("read dictionary entry: %w", ErrMalformedDER)
		}

		value, err := readValue(&pair)
		if err != nil {
			return nil, fmt.Errorf("entitlement %q: %w", string(key), err)
		}

		dict[string(key)] = value
	}

	return dict, nil
}

func readValue(s *cryptobyte.String) (any, error) {
	switch {
	case s.PeekASN1Tag(asn1.BOOLEAN):
		var v bool
		if s.ReadASN1Boolean(&v) {
			return v, nil
		}

	case s.PeekASN1Tag(asn1.INTEGER):
		var v int64
		if s.ReadASN1Integer(&v) {
			if v >= 0 {
				return uint64(v), nil
			}

			return v, nil
		}

	case s.PeekASN1Tag(asn1.UTF8String):
		var v cryptobyte.String
		if s.ReadASN1(&v, asn1.UTF8String) {
			return string(v), nil
		}

	case s.PeekASN1Tag(asn1.SEQUENCE):
		var items cryptobyte.String
		if !s.ReadASN1(&items, asn1.SEQUENCE) {
			break
		}

		array := make([]any, 0)
		for !items.Empty() {
			item, err := readValue(&items)
			if err != nil {
				return nil, err
			}

			array = append(array, item)
		}

		return array, nil

	case s.PeekASN1Tag(tagDictionary):
		return readDictionary(s)
	}

	return nil, fmt.Errorf("read value: %w", ErrMalformedDER)
}
