package blobs

type (
	// BlobDecoder defines the function signature
	// for a function that can decode a specific
	// Code Signature blob from its raw format
	// into the appropriate data structure that
	// represents it.
	//
	// The raw slice handed to the decoder holds
	// exactly hdr.Length bytes, header included.
	BlobDecoder func(hdr BlobHeader, raw []byte) (Blob, error)

	// BlobMetadata defines a data structure
	// used to store information about a specific
	// Code Signature blob type so that this library
	// can appropriately decode the blob.
	BlobMetadata struct {
		// MagicValue specifies the 32-bit unsigned
		// integer used to represent the specific
		// Code Signature blob.
		MagicValue uint32

		// Name specifies a unique name for the
		// Code Signature blob can be used when
		// producing error messages for the
		// specific Code Signature blob.
		Name string

		// Decoder specifies the BlobDecoder
		// function to use when decoding the
		// specific Code Signature blob from
		// its raw format.
		Decoder BlobDecoder
	}
)
