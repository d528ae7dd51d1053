package blobs

import (
	"fmt"
	"sync"
)

var (
	// blobRegistry defines the lookup
	// table that links a registered
	// Magic to the appropriate BlobMetadata
	// describing it.
	blobRegistry = map[Magic]*BlobMetadata{}
	registryLock sync.RWMutex
)

// RegisterBlobType will register a new
// Code Signature Blob type with the library
// allowing it to decode the Blob from its
// raw format.
//
// If the Magic value specified in the BlobMetadata
// has already been registered this function will
// panic.
func RegisterBlobType(metadata BlobMetadata) Magic {
	registryLock.Lock()
	defer registryLock.Unlock()

	if meta := blobRegistry[Magic(metadata.MagicValue)]; meta != nil {
		panic(fmt.Sprintf("magic 0x%x already registered to blob type '%s'", meta.MagicValue, meta.Name))
	}

	blobRegistry[Magic(metadata.MagicValue)] = &metadata
	return Magic(metadata.MagicValue)
}

func lookup(magic Magic) *BlobMetadata {
	registryLock.RLock()
	defer registryLock.RUnlock()

	return blobRegistry[magic]
}

// Decode looks up the BlobMetadata
// registered to this Magic and, if
// found, uses its BlobDecoder to
// decode the appropriate Blob from
// the supplied raw bytes.
//
// If the Magic doesn't have a BlobMetadata
// registered then the BlobDecoder
// for a Generic blob will be used.
func (magic Magic) Decode(hdr BlobHeader, raw []byte) (Blob, error) {
	if meta := lookup(magic); meta != nil && meta.Decoder != nil {
		return meta.Decoder(hdr, raw)
	}

	return GenericDecoder(hdr, raw)
}

// Kind returns the Kind of blob this
// Magic identifies.
func (magic Magic) Kind() Kind {
	return Classify(magic)
}

// String returns the name of this Magic
// as described in its registered BlobMetadata.
//
// If no BlobMetadata has been registered to
// this Magic then the hex encoding will be
// returned instead.
func (magic Magic) String() string {
	if meta := lookup(magic); meta != nil {
		return meta.Name
	}

	return fmt.Sprintf("0x%x", uint32(magic))
}

// Parse decodes the blob at the start of raw,
// dispatching on its Magic to the registered
// BlobDecoder. Bytes following the length
// declared in the blob header are ignored.
func Parse(raw []byte) (Blob, error) {
	hdr, err := ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("parse blob header: %w", err)
	}

	blob, err := hdr.Magic.Decode(hdr, raw[:hdr.Length:hdr.Length])
	if err != nil {
		return nil, fmt.Errorf("decode %s blob: %w", hdr.Magic, err)
	}

	return blob, nil
}
