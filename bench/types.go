// Package bench runs repeated timed flash operations per block-size class,
// logs one structured record per trial to the external log store, and retains
// per-class sample series for aggregation.
package bench

import (
	"fmt"
	"math/rand"

	"github.com/gentam/flashbench"
)

// Operation is the kind of flash access being benchmarked.
type Operation int

const (
	OpRead Operation = iota
	OpProgram
	OpErase
)

func (op Operation) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpProgram:
		return "program"
	case OpErase:
		return "erase"
	}
	return fmt.Sprintf("Operation(%d)", int(op))
}

// ParseOperation accepts the log-record spellings; "write" is an accepted
// alias for program found in older logs.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "read":
		return OpRead, nil
	case "program", "write":
		return OpProgram, nil
	case "erase":
		return OpErase, nil
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Operations lists the benchmarkable operations in suite order.
func Operations() []Operation { return []Operation{OpRead, OpProgram, OpErase} }

// Pattern is the test data written during program trials and erase prefills.
type Pattern int

const (
	PatternNone Pattern = iota // reads carry no data pattern
	PatternAllOnes
	PatternAllZeros
	PatternAlternating
	PatternRandom
	PatternIncremental
)

func (p Pattern) String() string {
	switch p {
	case PatternNone:
		return "n/a"
	case PatternAllOnes:
		return "0xFF"
	case PatternAllZeros:
		return "0x00"
	case PatternAlternating:
		return "0x55"
	case PatternRandom:
		return "random"
	case PatternIncremental:
		return "incremental"
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// ParsePattern maps the log-record spelling back to the enum.
func ParsePattern(s string) (Pattern, error) {
	switch s {
	case "n/a":
		return PatternNone, nil
	case "0xFF":
		return PatternAllOnes, nil
	case "0x00":
		return PatternAllZeros, nil
	case "0x55":
		return PatternAlternating, nil
	case "random":
		return PatternRandom, nil
	case "incremental":
		return PatternIncremental, nil
	}
	return 0, fmt.Errorf("unknown pattern %q", s)
}

// Fill writes the pattern into buf. offset is the buffer's position within
// the overall span so incremental data stays continuous across chunked
// transfers, which is what the prefill verification recomputes.
func (p Pattern) Fill(buf []byte, offset int64) {
	switch p {
	case PatternAllZeros:
		for i := range buf {
			buf[i] = 0x00
		}
	case PatternAlternating:
		for i := range buf {
			buf[i] = 0x55
		}
	case PatternRandom:
		for i := range buf {
			buf[i] = byte(rand.Intn(256))
		}
	case PatternIncremental:
		for i := range buf {
			buf[i] = byte(offset + int64(i))
		}
	default: // PatternAllOnes and anything unrecognized
		for i := range buf {
			buf[i] = 0xFF
		}
	}
}

// Verifiable reports whether a prefill of this pattern can be checked by
// read-back. Random data cannot be recomputed deterministically.
func (p Pattern) Verifiable() bool { return p != PatternRandom }

// SizeClass is one of the fixed benchmark block-size buckets. It is the join
// key between measured series and database predictions.
type SizeClass int

const (
	ClassByte SizeClass = iota
	ClassPage
	ClassSector
	ClassBlock32
	ClassBlock64
	ClassWholeDevice
)

// Classes lists all size classes in ascending size order.
func Classes() []SizeClass {
	return []SizeClass{ClassByte, ClassPage, ClassSector, ClassBlock32, ClassBlock64, ClassWholeDevice}
}

// FixedClasses is Classes without the whole-device bucket, which is gated
// behind an explicit confirmation by the caller.
func FixedClasses() []SizeClass {
	return []SizeClass{ClassByte, ClassPage, ClassSector, ClassBlock32, ClassBlock64}
}

// Bytes returns the logical block size for the class; the whole-device class
// resolves to the given capacity.
func (c SizeClass) Bytes(capacity int64) int64 {
	switch c {
	case ClassByte:
		return 1
	case ClassPage:
		return flashbench.PageSize
	case ClassSector:
		return flashbench.SectorSize
	case ClassBlock32:
		return flashbench.Block32Size
	case ClassBlock64:
		return flashbench.Block64Size
	case ClassWholeDevice:
		return capacity
	}
	return 0
}

// Suffix is the class tag used in report row titles, e.g. "mean_4096B".
func (c SizeClass) Suffix() string {
	switch c {
	case ClassByte:
		return "1B"
	case ClassPage:
		return "256B"
	case ClassSector:
		return "4096B"
	case ClassBlock32:
		return "32768B"
	case ClassBlock64:
		return "65536B"
	case ClassWholeDevice:
		return "WHOLE"
	}
	return "?"
}

// Label is the human-readable name used in progress output and notes tags.
func (c SizeClass) Label() string {
	switch c {
	case ClassByte:
		return "1-byte"
	case ClassPage:
		return "1-page"
	case ClassSector:
		return "1-sector"
	case ClassBlock32:
		return "32k-block"
	case ClassBlock64:
		return "64k-block"
	case ClassWholeDevice:
		return "whole-chip"
	}
	return "?"
}

// ClassifyBytes maps a logged block size back to its class. Whole-device rows
// match only when the capacity is known.
func ClassifyBytes(n, capacity int64) (SizeClass, bool) {
	switch n {
	case 1:
		return ClassByte, true
	case flashbench.PageSize:
		return ClassPage, true
	case flashbench.SectorSize:
		return ClassSector, true
	case flashbench.Block32Size:
		return ClassBlock32, true
	case flashbench.Block64Size:
		return ClassBlock64, true
	}
	if capacity > 0 && n == capacity {
		return ClassWholeDevice, true
	}
	return 0, false
}
