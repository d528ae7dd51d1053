package code_directory

// Byte offsets of the fixed header fields
// from the start of a CodeDirectory.
const (
	offsetMagic            = 0
	offsetLength           = 4
	offsetVersion          = 8
	offsetFlags            = 12
	offsetHashOffset       = 16
	offsetIdentOffset      = 20
	offsetNSpecialSlots    = 24
	offsetNCodeSlots       = 28
	offsetCodeLimit        = 32
	offsetHashSize         = 36
	offsetHashType         = 37
	offsetPlatform         = 38
	offsetPageSize         = 39
	offsetSpare2           = 40
	offsetScatterOffset    = 44 // SupportsVersionScatter
	offsetTeamOffset       = 48 // SupportsVersionTeamID
	offsetSpare3           = 52 // SupportsVersionCodeLimit64
	offsetCodeLimit64      = 56
	offsetExecSegBase      = 64 // SupportsVersionExecSeg
	offsetExecSegLimit     = 72
	offsetExecSegFlags     = 80
	offsetRuntime          = 88 // SupportsVersionRuntime
	offsetPreEncryptOffset = 92

	fixedSizeCurrent = 96
)
