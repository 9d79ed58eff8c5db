package forensic

import (
	"math"

	"github.com/gentam/flashbench"
	"github.com/gentam/flashbench/bench"
	"github.com/gentam/flashbench/chipdb"
)

// NA is the report token for a value that could not be computed.
const NA = "NA"

// Undecided is the final-guess token when neither the measurements nor the
// identification narrow the part down.
const Undecided = "undecided"

// predictReadMBps scales the row's reference-clock read speed to the bus
// clock the measurements ran at.
func predictReadMBps(row *chipdb.Record, sckMHz float64) (float64, bool) {
	if row.ReadRefMBps <= 0 || sckMHz <= 0 {
		return 0, false
	}
	return row.ReadRefMBps * (sckMHz / chipdb.ReferenceClockMHz), true
}

// predictProgramMS is the row's typical page-program time times the page
// count covering the span.
func predictProgramMS(row *chipdb.Record, bytes int64) (float64, bool) {
	if row.PageProgMs <= 0 || bytes <= 0 {
		return 0, false
	}
	pages := (bytes + flashbench.PageSize - 1) / flashbench.PageSize
	return row.PageProgMs * float64(pages), true
}

// eraseTypicalMS returns the row's typical erase time for the class. Only the
// classes with a matching erase granularity have a datasheet figure; byte,
// page, and whole-device erases have none.
func eraseTypicalMS(row *chipdb.Record, class bench.SizeClass) (float64, bool) {
	var v float64
	switch class {
	case bench.ClassSector:
		v = row.Erase4KMs
	case bench.ClassBlock32:
		v = row.Erase32KMs
	case bench.ClassBlock64:
		v = row.Erase64KMs
	default:
		return 0, false
	}
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// DBMeans holds, per class and operation, the database prediction closest to
// the measured mean. Absent keys mean no row could predict that cell.
type DBMeans struct {
	Read    map[bench.SizeClass]float64 // MiB/s
	Program map[bench.SizeClass]float64 // ms
	Erase   map[bench.SizeClass]float64 // ms
}

// ClosestPredictions picks, for every measured cell, the database row whose
// prediction lands nearest the measured mean.
func ClosestPredictions(db *chipdb.DB, a *Aggregates) DBMeans {
	m := DBMeans{
		Read:    map[bench.SizeClass]float64{},
		Program: map[bench.SizeClass]float64{},
		Erase:   map[bench.SizeClass]float64{},
	}
	if db == nil {
		return m
	}

	for _, class := range bench.Classes() {
		if s := a.ReadMBps[class]; s.Count > 0 {
			best, bestD := 0.0, math.Inf(1)
			for i := range db.Rows {
				if pred, ok := predictReadMBps(&db.Rows[i], a.SckMHz); ok {
					if d := math.Abs(pred - s.Mean); d < bestD {
						best, bestD = pred, d
					}
				}
			}
			if !math.IsInf(bestD, 1) {
				m.Read[class] = best
			}
		}

		if s := a.ProgramMS[class]; s.Count > 0 {
			if bytes, ok := a.classBytes(class); ok {
				best, bestD := 0.0, math.Inf(1)
				for i := range db.Rows {
					if pred, ok := predictProgramMS(&db.Rows[i], bytes); ok {
						if d := math.Abs(pred - s.Mean); d < bestD {
							best, bestD = pred, d
						}
					}
				}
				if !math.IsInf(bestD, 1) {
					m.Program[class] = best
				}
			}
		}

		if s := a.EraseMS[class]; s.Count > 0 {
			best, bestD := 0.0, math.Inf(1)
			for i := range db.Rows {
				if ref, ok := eraseTypicalMS(&db.Rows[i], class); ok {
					if d := math.Abs(ref - s.Mean); d < bestD {
						best, bestD = ref, d
					}
				}
			}
			if !math.IsInf(bestD, 1) {
				m.Erase[class] = best
			}
		}
	}
	return m
}

// almostEqual compares values produced by the same formula: a tiny absolute
// difference or a small relative one counts as equal.
func almostEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	diff := math.Abs(a - b)
	if diff < 1e-4 {
		return true
	}
	maxab := math.Max(math.Abs(a), math.Abs(b))
	if maxab < 1e-6 {
		return diff < 1e-6
	}
	return diff/maxab < 1e-3
}

// CandidateSets lists, per class and operation, every JEDEC id whose
// prediction matches the winning database mean for that cell. A nil slice
// means the cell has no candidates.
type CandidateSets struct {
	Read    map[bench.SizeClass][]string
	Program map[bench.SizeClass][]string
	Erase   map[bench.SizeClass][]string
}

// Candidates rebuilds each cell's prediction for every row and keeps the ids
// that reproduce the winning mean.
func Candidates(db *chipdb.DB, a *Aggregates, means DBMeans) CandidateSets {
	c := CandidateSets{
		Read:    map[bench.SizeClass][]string{},
		Program: map[bench.SizeClass][]string{},
		Erase:   map[bench.SizeClass][]string{},
	}
	if db == nil {
		return c
	}

	for _, class := range bench.Classes() {
		if want, ok := means.Read[class]; ok {
			for i := range db.Rows {
				row := &db.Rows[i]
				if row.JEDEC == "" {
					continue
				}
				if pred, ok := predictReadMBps(row, a.SckMHz); ok && almostEqual(pred, want) {
					c.Read[class] = append(c.Read[class], row.JEDEC)
				}
			}
		}

		if want, ok := means.Program[class]; ok {
			if bytes, ok := a.classBytes(class); ok {
				for i := range db.Rows {
					row := &db.Rows[i]
					if row.JEDEC == "" {
						continue
					}
					if pred, ok := predictProgramMS(row, bytes); ok && almostEqual(pred, want) {
						c.Program[class] = append(c.Program[class], row.JEDEC)
					}
				}
			}
		}

		if want, ok := means.Erase[class]; ok {
			for i := range db.Rows {
				row := &db.Rows[i]
				if row.JEDEC == "" {
					continue
				}
				if ref, ok := eraseTypicalMS(row, class); ok && almostEqual(ref, want) {
					c.Erase[class] = append(c.Erase[class], row.JEDEC)
				}
			}
		}
	}
	return c
}

// Intersect keeps the ids present in every class that has candidates.
// Classes without candidates do not constrain the set; when no class has any,
// the result is nil.
func Intersect(sets map[bench.SizeClass][]string) []string {
	var base []string
	for _, class := range bench.Classes() {
		if len(sets[class]) > 0 {
			base = sets[class]
			break
		}
	}
	if base == nil {
		return nil
	}

	var out []string
	for _, id := range base {
		inAll := true
		for _, class := range bench.Classes() {
			cand := sets[class]
			if len(cand) == 0 {
				continue
			}
			found := false
			for _, c := range cand {
				if c == id {
					found = true
					break
				}
			}
			if !found {
				inAll = false
				break
			}
		}
		if inAll && !contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// normDiff is the per-metric penalty: relative distance to the reference,
// capped, with the cap itself as the penalty for unusable values.
func normDiff(meas, ref float64) float64 {
	const capped = 3.0
	if !(meas > 0) || !(ref > 0) {
		return capped
	}
	d := math.Abs(meas-ref) / ref
	return math.Min(d, capped)
}

// Verdict is the final guess. Score is NaN when no candidate could be scored;
// a detected id that matches a row discounts that row's score heavily.
type Verdict struct {
	JEDEC   string
	Model   string
	Company string
	Score   float64
	Metrics int // how many (class, op) cells contributed to the score
}

func orNA(s string) string {
	if s == "" {
		return NA
	}
	return s
}

// scoreRow sums the normalized distance of every measured cell to the row's
// predictions. used is zero when the row predicts nothing that was measured.
func scoreRow(row *chipdb.Record, a *Aggregates) (score float64, used int) {
	if row.ReadRefMBps > 0 && a.SckMHz > 0 {
		for _, class := range bench.Classes() {
			if s := a.ReadMBps[class]; s.Count > 0 {
				pred, _ := predictReadMBps(row, a.SckMHz)
				score += normDiff(s.Mean, pred)
				used++
			}
		}
	}

	if row.PageProgMs > 0 {
		for _, class := range bench.Classes() {
			if s := a.ProgramMS[class]; s.Count > 0 {
				if bytes, ok := a.classBytes(class); ok {
					pred, _ := predictProgramMS(row, bytes)
					score += normDiff(s.Mean, pred)
					used++
				}
			}
		}
	}

	for _, class := range bench.Classes() {
		if s := a.EraseMS[class]; s.Count > 0 {
			if ref, ok := eraseTypicalMS(row, class); ok {
				score += normDiff(s.Mean, ref)
				used++
			}
		}
	}
	return score, used
}

// Conclude scores every database row against the measurements and returns the
// final guess. detected is the normalized live identification, or empty.
//
// Without any measurements the identification alone decides: a detected id
// concludes with score zero, nothing at all concludes undecided. With
// measurements but no scorable row, the detected id is reported with an
// unknown score.
func Conclude(db *chipdb.DB, a *Aggregates, detected string) Verdict {
	var match *chipdb.Record
	if db != nil && detected != "" {
		match, _ = db.Lookup(detected)
	}

	best := -1
	bestScore := math.Inf(1)
	bestUsed := 0
	if db != nil {
		for i := range db.Rows {
			score, used := scoreRow(&db.Rows[i], a)
			if used == 0 {
				continue
			}
			if detected != "" && db.Rows[i].JEDEC == detected {
				score *= 0.25
			}
			if score < bestScore {
				best, bestScore, bestUsed = i, score, used
			}
		}
	}

	if !a.HasMeasurements() {
		if detected == "" {
			return Verdict{JEDEC: Undecided, Model: Undecided, Company: Undecided, Score: math.NaN()}
		}
		v := Verdict{JEDEC: detected, Model: NA, Company: NA, Score: 0}
		if match != nil {
			v.Model = orNA(match.Model)
			v.Company = orNA(match.Company)
		}
		return v
	}

	if best >= 0 {
		row := &db.Rows[best]
		return Verdict{
			JEDEC:   orNA(row.JEDEC),
			Model:   orNA(row.Model),
			Company: orNA(row.Company),
			Score:   bestScore,
			Metrics: bestUsed,
		}
	}

	if detected != "" {
		v := Verdict{JEDEC: detected, Model: NA, Company: NA, Score: math.NaN()}
		if match != nil {
			v.Model = orNA(match.Model)
			v.Company = orNA(match.Company)
		}
		return v
	}
	return Verdict{JEDEC: Undecided, Model: Undecided, Company: Undecided, Score: math.NaN()}
}
