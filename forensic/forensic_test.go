package forensic

import (
	"math"
	"strings"
	"testing"

	"github.com/gentam/flashbench/bench"
	"github.com/gentam/flashbench/chipdb"
)

func rec(op bench.Operation, size int64, us uint64) bench.Record {
	return bench.Record{Op: op, BlockSize: size, ElapsedUS: us}
}

func testDB() *chipdb.DB {
	return &chipdb.DB{Rows: []chipdb.Record{
		{
			JEDEC: "EF4016", Model: "W25Q32JV", Company: "Winbond", Family: "W25Q",
			CapacityMbit: 32,
			PageProgMs:   0.7, Erase4KMs: 45, Erase32KMs: 120, Erase64KMs: 150,
			ReadRefMBps: 6.2,
		},
		{
			JEDEC: "C22017", Model: "MX25L6406E", Company: "Macronix", Family: "MX25L",
			CapacityMbit: 64,
			PageProgMs:   1.4, Erase4KMs: 60,
			ReadRefMBps: 6.0,
		},
		{
			JEDEC: "BF2642", Model: "SST26VF032B", Company: "Microchip", Family: "SST26",
			CapacityMbit: 32,
			PageProgMs:   0.7, Erase4KMs: 18,
		},
	}}
}

func TestCollect(t *testing.T) {
	const capacity = 1 << 22
	records := []bench.Record{
		rec(bench.OpRead, 4096, 1000),
		rec(bench.OpRead, 4096, 1000),
		rec(bench.OpProgram, 4096, 11200),
		rec(bench.OpErase, 4096, 45100),
		rec(bench.OpRead, capacity, 500000),
		rec(bench.OpRead, 512, 100), // unrecognized block size: dropped
		rec(bench.OpRead, 4096, 0),  // zero elapsed: dropped
	}

	a := Collect(records, capacity, 10)
	if n := a.ReadMBps[bench.ClassSector].Count; n != 2 {
		t.Errorf("sector read samples = %d, want 2", n)
	}
	if n := a.ReadMBps[bench.ClassWholeDevice].Count; n != 1 {
		t.Errorf("whole-device read samples = %d, want 1", n)
	}
	if n := a.ProgramMS[bench.ClassSector].Count; n != 1 {
		t.Errorf("program samples = %d, want 1", n)
	}
	if got := a.ProgramMS[bench.ClassSector].Mean; got != 11.2 {
		t.Errorf("program mean = %v ms, want 11.2", got)
	}
	if got := a.EraseMS[bench.ClassSector].Mean; got != 45.1 {
		t.Errorf("erase mean = %v ms, want 45.1", got)
	}
	if !a.HasMeasurements() {
		t.Error("HasMeasurements = false")
	}

	// Without a known capacity the whole-device rows cannot be classified.
	b := Collect(records, 0, 10)
	if n := b.ReadMBps[bench.ClassWholeDevice].Count; n != 0 {
		t.Errorf("whole-device samples without capacity = %d, want 0", n)
	}
}

func TestClosestPredictionsProgram(t *testing.T) {
	// A 4096-byte program is 16 pages; 0.7 ms/page predicts 11.2 ms.
	a := Collect([]bench.Record{rec(bench.OpProgram, 4096, 11300)}, 1<<22, 10)
	means := ClosestPredictions(testDB(), a)

	got, ok := means.Program[bench.ClassSector]
	if !ok {
		t.Fatal("no program prediction for the sector class")
	}
	if math.Abs(got-11.2) > 1e-9 {
		t.Errorf("prediction = %v, want 11.2", got)
	}
}

func TestClosestPredictionsRead(t *testing.T) {
	// 6.2 MB/s at 50 MHz scales to 1.24 MB/s at 10 MHz.
	records := []bench.Record{rec(bench.OpRead, 4096, 3200)} // ~1.22 MB/s
	a := Collect(records, 1<<22, 10)
	means := ClosestPredictions(testDB(), a)

	got, ok := means.Read[bench.ClassSector]
	if !ok {
		t.Fatal("no read prediction for the sector class")
	}
	if math.Abs(got-1.24) > 1e-9 {
		t.Errorf("prediction = %v, want 1.24", got)
	}
}

func TestClosestPredictionsEraseGranularity(t *testing.T) {
	// Page-class erases have no datasheet granularity, so no prediction.
	a := Collect([]bench.Record{
		rec(bench.OpErase, 256, 46000),
		rec(bench.OpErase, 4096, 46000),
	}, 1<<22, 10)
	means := ClosestPredictions(testDB(), a)

	if _, ok := means.Erase[bench.ClassPage]; ok {
		t.Error("page-class erase must have no prediction")
	}
	got, ok := means.Erase[bench.ClassSector]
	if !ok {
		t.Fatal("no erase prediction for the sector class")
	}
	if got != 45 {
		t.Errorf("prediction = %v, want 45", got)
	}
}

func TestCandidatesShareCell(t *testing.T) {
	// EF4016 and BF2642 share the same page-program figure, so both must
	// appear for the winning program cell.
	a := Collect([]bench.Record{rec(bench.OpProgram, 4096, 11300)}, 1<<22, 10)
	db := testDB()
	means := ClosestPredictions(db, a)
	cands := Candidates(db, a, means)

	got := cands.Program[bench.ClassSector]
	if len(got) != 2 || !contains(got, "EF4016") || !contains(got, "BF2642") {
		t.Errorf("candidates = %v, want EF4016 and BF2642", got)
	}
}

func TestAlmostEqual(t *testing.T) {
	tests := []struct {
		a, b float64
		want bool
	}{
		{11.2, 11.2, true},
		{11.2, 11.20005, true},    // tiny absolute difference
		{1000, 1000.5, true},      // small relative difference
		{1000, 1002, false},       // relative difference too large
		{11.2, 22.4, false},
		{math.NaN(), 11.2, false},
	}
	for _, tt := range tests {
		if got := almostEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("almostEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIntersect(t *testing.T) {
	sets := map[bench.SizeClass][]string{
		bench.ClassSector:  {"EF4016", "BF2642"},
		bench.ClassBlock64: {"EF4016"},
		// block32 has no candidates and must not constrain the set
	}
	got := Intersect(sets)
	if len(got) != 1 || got[0] != "EF4016" {
		t.Errorf("Intersect = %v, want [EF4016]", got)
	}

	if got := Intersect(map[bench.SizeClass][]string{}); got != nil {
		t.Errorf("empty intersection = %v, want nil", got)
	}
}

func TestConcludeJEDECDiscount(t *testing.T) {
	// The measured erase sits closer to the Macronix figure, but the live
	// identification matches the Winbond row, whose score is discounted.
	a := Collect([]bench.Record{rec(bench.OpErase, 4096, 55000)}, 1<<22, 10)
	v := Conclude(testDB(), a, "EF4016")

	if v.JEDEC != "EF4016" {
		t.Errorf("final guess = %q, want EF4016", v.JEDEC)
	}
	if v.Model != "W25Q32JV" || v.Company != "Winbond" {
		t.Errorf("identity = %q / %q", v.Model, v.Company)
	}
	if math.IsNaN(v.Score) {
		t.Error("score must be known")
	}
}

func TestConcludeWithoutDetection(t *testing.T) {
	a := Collect([]bench.Record{rec(bench.OpErase, 4096, 17900)}, 1<<22, 10)
	v := Conclude(testDB(), a, "")
	if v.JEDEC != "BF2642" {
		t.Errorf("final guess = %q, want BF2642 (closest erase figure)", v.JEDEC)
	}
}

func TestConcludeNoMeasurements(t *testing.T) {
	a := Collect(nil, 0, 10)

	v := Conclude(testDB(), a, "EF4016")
	if v.JEDEC != "EF4016" || v.Model != "W25Q32JV" {
		t.Errorf("verdict = %+v", v)
	}
	if v.Score != 0 {
		t.Errorf("score = %v, want 0 for identification-only conclusion", v.Score)
	}

	v = Conclude(testDB(), a, "")
	if v.JEDEC != Undecided || v.Model != Undecided || v.Company != Undecided {
		t.Errorf("verdict = %+v, want undecided", v)
	}
	if !math.IsNaN(v.Score) {
		t.Errorf("score = %v, want NaN", v.Score)
	}
}

func TestConcludeNoScorableRows(t *testing.T) {
	db := &chipdb.DB{Rows: []chipdb.Record{{JEDEC: "EF4016", Model: "W25Q32JV"}}}
	a := Collect([]bench.Record{rec(bench.OpRead, 4096, 1000)}, 1<<22, 10)

	v := Conclude(db, a, "EF4016")
	if v.JEDEC != "EF4016" {
		t.Errorf("final guess = %q", v.JEDEC)
	}
	if !math.IsNaN(v.Score) {
		t.Errorf("score = %v, want NaN when nothing could be scored", v.Score)
	}
}

func TestWriteReport(t *testing.T) {
	records := []bench.Record{
		rec(bench.OpRead, 4096, 3200),
		rec(bench.OpProgram, 4096, 11300),
		rec(bench.OpErase, 4096, 45100),
	}
	a := Collect(records, 1<<22, 10)

	var sb strings.Builder
	if err := WriteReport(&sb, testDB(), a, "EF4016"); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := sb.String()
	lines := strings.Split(out, "\n")

	if lines[0] != "title,read,write,erase" {
		t.Errorf("header = %q", lines[0])
	}

	wantRows := map[string]string{
		"detected_jedec": "detected_jedec,EF4016,EF4016,EF4016",
		"chip_model":     "chip_model,W25Q32JV,W25Q32JV,W25Q32JV",
		"capacity_mbit":  "capacity_mbit,32,32,32",
		"capacity_bytes": "capacity_bytes,4194304,4194304,4194304",
		"spi_sck_MHz":    "spi_sck_MHz,10.00,10.00,10.00",
		"units_summary":  "units_summary,ms,ms,ms",
		"db_mean_4096B":  "db_mean_4096B,1.240,11.200,45.000",
		"n_4096B":        "n_4096B,1,1,1",
	}
	for name, want := range wantRows {
		found := false
		for _, line := range lines {
			if line == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("row %s missing or wrong, want %q", name, want)
		}
	}

	// Classes that were never measured report NA throughout.
	if !strings.Contains(out, "n_1B,NA,NA,NA") {
		t.Error("unmeasured class must report NA counts")
	}
	if !strings.Contains(out, "db_mean_1B,NA,NA,NA") {
		t.Error("unmeasured class must report NA predictions")
	}

	// Candidate rows carry slash-joined ids.
	if !strings.Contains(out, "possible_chips_4096B,EF4016,EF4016/BF2642,EF4016") {
		t.Errorf("possible_chips row wrong:\n%s", out)
	}

	// Final-guess block after the blank spacer.
	if !strings.Contains(out, "\n\nfinal_guess_jedec,final_guess_model,final_guess_company,final_score\n") {
		t.Error("final guess block missing")
	}
	if !strings.Contains(out, "EF4016,W25Q32JV,Winbond,") {
		t.Error("final guess row missing")
	}
}

func TestWriteReportUndecided(t *testing.T) {
	var sb strings.Builder
	if err := WriteReport(&sb, nil, Collect(nil, 0, 0), ""); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := sb.String()

	if !strings.Contains(out, "detected_jedec,NA,NA,NA") {
		t.Error("missing NA identity row")
	}
	if !strings.Contains(out, "spi_sck_MHz,NA,NA,NA") {
		t.Error("missing NA clock row")
	}
	if !strings.HasSuffix(strings.TrimRight(out, "\n"), "undecided,undecided,undecided,NA") {
		t.Errorf("final row wrong:\n%s", out)
	}
}
