package code_directory

import (
	"fmt"
	"strings"
)

// ExecSegment describes the executable segment,
// typically __TEXT, of the signed code.
type ExecSegment struct {
	SegmentBase  uint64
	SegmentLimit uint64
	Flags        ExecSegmentFlag
}

// IsZero reports whether no exec segment
// information has been set.
func (seg ExecSegment) IsZero() bool {
	return seg.SegmentBase == 0 && seg.SegmentLimit == 0 && seg.Flags == 0
}

type ExecSegmentFlag uint64

const (
	ExecSegmentFlagMainBinary     ExecSegmentFlag = 0x01
	ExecSegmentFlagsAllowUnsigned ExecSegmentFlag = 0x10 << (iota - 1)
	ExecSegmentFlagDebugger
	ExecSegmentFlagJIT
	ExecSegmentFlagSkipLV
	ExecSegmentFlagCanLoadCDHASH
	ExecSegmentFlagCanExecCDHASH
)

var segmentFlagToName = map[ExecSegmentFlag]string{
	ExecSegmentFlagMainBinary:     "MAIN_BINARY",
	ExecSegmentFlagsAllowUnsigned: "ALLOW_UNSIGNED",
	ExecSegmentFlagDebugger:       "DEBUGGER",
	ExecSegmentFlagJIT:            "JIT",
	ExecSegmentFlagSkipLV:         "SKIP_LV",
	ExecSegmentFlagCanLoadCDHASH:  "LOAD_CDHASH",
	ExecSegmentFlagCanExecCDHASH:  "EXEC_CDHASH",
}

func (flags ExecSegmentFlag) String() string {
	var flagNames []string

	for _, flag := range sortedFlags(segmentFlagToName) {
		if flags&flag == flag {
			flagNames = append(flagNames, segmentFlagToName[flag])
		}
	}

	return fmt.Sprintf("0x%x (%s)", uint64(flags), strings.Join(flagNames, ","))
}

func (flags *ExecSegmentFlag) Set(flag ExecSegmentFlag) {
	*flags |= flag
}
