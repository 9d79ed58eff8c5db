// Package chipdb loads the reference chip database: one row per known flash
// part with its JEDEC id and typical datasheet timings. The forensic matcher
// compares measured latencies against these rows.
package chipdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrUnavailable means the reference file is missing or its header is not
// recognizable. Callers fall back to a fixed default capacity and an empty
// candidate set; the error is never fatal to a benchmark run.
var ErrUnavailable = errors.New("chipdb: reference database unavailable")

// ReferenceClockMHz is the bus clock the database read-speed column refers to.
const ReferenceClockMHz = 50.0

// 1 Mbit of flash = 131072 bytes.
const bytesPerMbit = 131072

// Record is one reference row. Numeric fields are absent when <= 0.
type Record struct {
	JEDEC   string // normalized hex, e.g. "BF2641"; empty if malformed
	Model   string
	Company string
	Family  string

	CapacityMbit float64

	// Typical datasheet timings in milliseconds.
	Erase4KMs   float64
	Erase32KMs  float64
	Erase64KMs  float64
	PageProgMs  float64
	ReadRefMBps float64 // read throughput at the reference clock
}

// CapacityBytes returns the part's size in bytes.
func (r *Record) CapacityBytes() (int64, bool) {
	if r.CapacityMbit <= 0 {
		return 0, false
	}
	return int64(r.CapacityMbit * bytesPerMbit), true
}

// DB is the loaded reference table. Immutable once loaded; load once per
// report generation.
type DB struct {
	Rows []Record
}

// NormalizeJEDEC strips everything but hex digits and upper-cases, so
// "bf 26 41", "0xBF2641" and "BF2641" compare equal. Ids that do not come out
// to exactly six hex digits normalize to "".
func NormalizeJEDEC(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		// "0x"/"0X" prefixes drop whole, not just the x.
		if c == '0' && i+1 < len(rs) && (rs[i+1] == 'x' || rs[i+1] == 'X') {
			i++
			continue
		}
		if isHex(c) {
			b.WriteRune(toUpperHex(c))
		}
	}
	if b.Len() != 6 {
		return ""
	}
	return b.String()
}

func isHex(c rune) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func toUpperHex(c rune) rune {
	if c >= 'a' && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}

// columns maps recognized header names to row field indexes.
type columns struct {
	model, company, family, capacity, jedec     int
	pageProg, erase4K, erase32K, erase64K, read int
}

func parseHeader(line string) (columns, bool) {
	c := columns{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	sawJEDEC := false
	for i, name := range splitFields(line) {
		name = strings.ToUpper(strings.TrimSpace(name))
		switch {
		case strings.Contains(name, "CHIP_MODEL") || strings.Contains(name, "MODEL"):
			c.model = i
		case strings.Contains(name, "COMPANY"):
			c.company = i
		case strings.Contains(name, "FAMILY"):
			c.family = i
		case strings.Contains(name, "CAPACITY") && strings.Contains(name, "MBIT"):
			c.capacity = i
		case strings.Contains(name, "JEDEC"):
			c.jedec = i
			sawJEDEC = true
		case strings.Contains(name, "PAGE_PROGRAM") || strings.Contains(name, "PAGE PROGRAM"):
			c.pageProg = i
		// 32K/64K before 4K: "64KB" contains "4KB".
		case strings.Contains(name, "32K"):
			c.erase32K = i
		case strings.Contains(name, "64K"):
			c.erase64K = i
		case strings.Contains(name, "4K"):
			c.erase4K = i
		case strings.Contains(name, "READ"):
			c.read = i
		}
	}
	return c, sawJEDEC
}

// splitFields splits on commas, or on tabs for lines that carry none.
func splitFields(line string) []string {
	sep := ","
	if !strings.Contains(line, ",") {
		sep = "\t"
	}
	return strings.Split(line, sep)
}

func field(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func floatOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// Load parses the reference table. The first non-empty line must be a header
// whose column names are matched case-insensitively by substring.
func Load(r io.Reader) (*DB, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var cols columns
	haveHeader := false
	db := &DB{}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !haveHeader {
			var ok bool
			cols, ok = parseHeader(line)
			if !ok {
				return nil, fmt.Errorf("%w: header has no JEDEC column", ErrUnavailable)
			}
			haveHeader = true
			continue
		}

		fields := splitFields(line)
		if len(fields) <= 1 {
			continue
		}
		db.Rows = append(db.Rows, Record{
			JEDEC:        NormalizeJEDEC(field(fields, cols.jedec)),
			Model:        field(fields, cols.model),
			Company:      field(fields, cols.company),
			Family:       field(fields, cols.family),
			CapacityMbit: floatOr(field(fields, cols.capacity), -1),
			PageProgMs:   floatOr(field(fields, cols.pageProg), -1),
			Erase4KMs:    floatOr(field(fields, cols.erase4K), -1),
			Erase32KMs:   floatOr(field(fields, cols.erase32K), -1),
			Erase64KMs:   floatOr(field(fields, cols.erase64K), -1),
			ReadRefMBps:  floatOr(field(fields, cols.read), -1),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !haveHeader {
		return nil, fmt.Errorf("%w: empty file", ErrUnavailable)
	}
	return db, nil
}

// Lookup finds the row with the given normalized JEDEC id.
func (db *DB) Lookup(jedec string) (*Record, bool) {
	if db == nil || jedec == "" {
		return nil, false
	}
	for i := range db.Rows {
		if db.Rows[i].JEDEC != "" && db.Rows[i].JEDEC == jedec {
			return &db.Rows[i], true
		}
	}
	return nil, false
}

// CapacityBytes resolves a normalized JEDEC id to a device size.
func (db *DB) CapacityBytes(jedec string) (int64, bool) {
	r, ok := db.Lookup(jedec)
	if !ok {
		return 0, false
	}
	return r.CapacityBytes()
}
