package forensic

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gentam/flashbench/bench"
	"github.com/gentam/flashbench/chipdb"
)

// f3 formats with three decimals, NA for NaN.
func f3(v float64) string {
	if math.IsNaN(v) {
		return NA
	}
	return fmt.Sprintf("%.3f", v)
}

// f2 formats with two decimals, NA for NaN.
func f2(v float64) string {
	if math.IsNaN(v) {
		return NA
	}
	return fmt.Sprintf("%.2f", v)
}

// fAuto widens the precision for values that would otherwise print as 0.000,
// which matters for sub-microsecond stddevs.
func fAuto(v float64) string {
	if math.IsNaN(v) {
		return NA
	}
	if a := math.Abs(v); a > 0 && a < 0.001 {
		return fmt.Sprintf("%.6f", v)
	}
	return fmt.Sprintf("%.3f", v)
}

func iOrNA(n int) string {
	if n <= 0 {
		return NA
	}
	return strconv.Itoa(n)
}

func cellOrNA(m map[bench.SizeClass]float64, class bench.SizeClass) string {
	if v, ok := m[class]; ok {
		return f3(v)
	}
	return NA
}

func joinOrNA(ids []string) string {
	if len(ids) == 0 {
		return NA
	}
	return strings.Join(ids, "/")
}

type reportWriter struct {
	w   io.Writer
	err error
}

func (rw *reportWriter) row(title, read, write, erase string) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, "%s,%s,%s,%s\n", title, read, write, erase)
}

func (rw *reportWriter) same(title, v string) {
	rw.row(title, v, v, v)
}

func (rw *reportWriter) raw(s string) {
	if rw.err != nil {
		return
	}
	_, rw.err = io.WriteString(rw.w, s)
}

// WriteReport renders the transposed report: one column per operation, one
// row per metric. detected is the normalized live identification or empty.
func WriteReport(w io.Writer, db *chipdb.DB, a *Aggregates, detected string) error {
	var match *chipdb.Record
	if db != nil && detected != "" {
		match, _ = db.Lookup(detected)
	}

	means := ClosestPredictions(db, a)
	cands := Candidates(db, a, means)
	verdict := Conclude(db, a, detected)

	rw := &reportWriter{w: w}
	rw.raw("title,read,write,erase\n")

	// Identity block: same value in all three columns.
	rw.same("detected_jedec", orNA(detected))
	model, family, company := NA, NA, NA
	capMbit, capBytes := NA, NA
	if match != nil {
		model = orNA(match.Model)
		family = orNA(match.Family)
		company = orNA(match.Company)
		if match.CapacityMbit > 0 {
			capMbit = strconv.FormatFloat(match.CapacityMbit, 'f', -1, 64)
			if n, ok := match.CapacityBytes(); ok {
				capBytes = strconv.FormatInt(n, 10)
			}
		}
	}
	rw.same("chip_model", model)
	rw.same("chip_family", family)
	rw.same("company", company)
	rw.same("capacity_mbit", capMbit)
	rw.same("capacity_bytes", capBytes)

	sck := math.NaN()
	if a.SckMHz > 0 {
		sck = a.SckMHz
	}
	rw.same("spi_sck_MHz", f2(sck))

	// Per-class latency summaries, all in milliseconds.
	rw.same("units_summary", "ms")
	for _, class := range bench.Classes() {
		suf := class.Suffix()
		r, wS, e := a.ReadLatMS[class], a.ProgramMS[class], a.EraseMS[class]

		rw.row("n_"+suf, iOrNA(r.Count), iOrNA(wS.Count), iOrNA(e.Count))
		rw.row("avg_"+suf+"_ms", fAuto(r.Mean), fAuto(wS.Mean), fAuto(e.Mean))
		rw.row("p25_"+suf+"_ms", fAuto(r.P25), fAuto(wS.P25), fAuto(e.P25))
		rw.row("p50_"+suf+"_ms", fAuto(r.P50), fAuto(wS.P50), fAuto(e.P50))
		rw.row("p75_"+suf+"_ms", fAuto(r.P75), fAuto(wS.P75), fAuto(e.P75))
		rw.row("min_"+suf+"_ms", fAuto(r.Min), fAuto(wS.Min), fAuto(e.Min))
		rw.row("max_"+suf+"_ms", fAuto(r.Max), fAuto(wS.Max), fAuto(e.Max))
		rw.row("stddev_"+suf+"_ms", fAuto(r.StdDev), fAuto(wS.StdDev), fAuto(e.StdDev))
	}

	// Closest database predictions per class; NA where nothing was measured
	// or no row carries the needed figure.
	for _, class := range bench.Classes() {
		rw.row("db_mean_"+class.Suffix(),
			cellOrNA(means.Read, class),
			cellOrNA(means.Program, class),
			cellOrNA(means.Erase, class))
	}

	// Ids whose predictions reproduce each winning cell.
	for _, class := range bench.Classes() {
		rw.row("possible_chips_"+class.Suffix(),
			joinOrNA(cands.Read[class]),
			joinOrNA(cands.Program[class]),
			joinOrNA(cands.Erase[class]))
	}

	rw.row("conclusion_possible_chips",
		joinOrNA(Intersect(cands.Read)),
		joinOrNA(Intersect(cands.Program)),
		joinOrNA(Intersect(cands.Erase)))

	rw.row("notes",
		"read: MB/s; db_mean_* = closest READ@SCK to measured mean per size; NA if no read data",
		"write: ms/op; db_mean_* = typ_page_ms * ceil(bytes/256) closest to measured mean; NA if no write data",
		"erase: ms/op; db_mean_* = typ_4K/32K/64K closest to measured mean; NA if no erase data")

	rw.raw("\n")
	rw.raw("final_guess_jedec,final_guess_model,final_guess_company,final_score\n")
	rw.raw(fmt.Sprintf("%s,%s,%s,%s\n", verdict.JEDEC, verdict.Model, verdict.Company, f3(verdict.Score)))

	return rw.err
}
