package bench

import (
	"math"
	"testing"
)

func almostEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2, 5})
	if s.Count != 5 {
		t.Errorf("Count = %d", s.Count)
	}
	if !almostEq(s.Mean, 3) {
		t.Errorf("Mean = %v", s.Mean)
	}
	if !almostEq(s.Min, 1) || !almostEq(s.Max, 5) {
		t.Errorf("Min/Max = %v/%v", s.Min, s.Max)
	}
	if !almostEq(s.P50, 3) {
		t.Errorf("P50 = %v", s.P50)
	}
	if !almostEq(s.P25, 2) || !almostEq(s.P75, 4) {
		t.Errorf("P25/P75 = %v/%v", s.P25, s.P75)
	}
	// Sample stddev of 1..5 is sqrt(2.5).
	if !almostEq(s.StdDev, math.Sqrt(2.5)) {
		t.Errorf("StdDev = %v", s.StdDev)
	}
}

func TestSummarizeInterpolates(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4})
	if !almostEq(s.P25, 1.75) {
		t.Errorf("P25 = %v, want 1.75", s.P25)
	}
	if !almostEq(s.P50, 2.5) {
		t.Errorf("P50 = %v, want 2.5", s.P50)
	}
	if !almostEq(s.P75, 3.25) {
		t.Errorf("P75 = %v, want 3.25", s.P75)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Count != 0 {
		t.Errorf("Count = %d", s.Count)
	}
	for name, v := range map[string]float64{
		"Mean": s.Mean, "P25": s.P25, "P50": s.P50, "P75": s.P75,
		"Min": s.Min, "Max": s.Max, "StdDev": s.StdDev,
	} {
		if !math.IsNaN(v) {
			t.Errorf("%s = %v, want NaN", name, v)
		}
	}
}

func TestSummarizeSingle(t *testing.T) {
	s := Summarize([]float64{7})
	if !almostEq(s.Mean, 7) || !almostEq(s.P50, 7) {
		t.Errorf("Mean/P50 = %v/%v", s.Mean, s.P50)
	}
	if !almostEq(s.StdDev, 0) {
		t.Errorf("StdDev = %v, want 0", s.StdDev)
	}
}

func TestSummarizeLeavesInput(t *testing.T) {
	in := []float64{3, 1, 2}
	Summarize(in)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Error("Summarize reordered its input")
	}
}

func TestMBps(t *testing.T) {
	// 1 MiB in one second.
	if got := MBps(1<<20, 1e6); !almostEq(got, 1) {
		t.Errorf("MBps = %v, want 1", got)
	}
	// 4 KiB in one millisecond is ~3.9 MiB/s.
	if got := MBps(4096, 1000); !almostEq(got, 4096.0/(1<<20)*1000) {
		t.Errorf("MBps = %v", got)
	}
	if got := MBps(4096, 0); got != 0 {
		t.Errorf("MBps with zero elapsed = %v, want 0", got)
	}
}

func TestPatternFillContinuity(t *testing.T) {
	// Incremental data split across chunks must equal one continuous fill.
	whole := make([]byte, 1024)
	PatternIncremental.Fill(whole, 0)

	chunked := make([]byte, 1024)
	for off := 0; off < len(chunked); off += 256 {
		PatternIncremental.Fill(chunked[off:off+256], int64(off))
	}
	for i := range whole {
		if whole[i] != chunked[i] {
			t.Fatalf("byte %d: %02X != %02X", i, whole[i], chunked[i])
		}
	}
}

func TestPatternFillValues(t *testing.T) {
	buf := make([]byte, 8)
	PatternAlternating.Fill(buf, 0)
	for _, b := range buf {
		if b != 0x55 {
			t.Fatalf("alternating fill produced %02X", b)
		}
	}
	PatternAllZeros.Fill(buf, 0)
	for _, b := range buf {
		if b != 0x00 {
			t.Fatalf("zeros fill produced %02X", b)
		}
	}
	PatternAllOnes.Fill(buf, 0)
	for _, b := range buf {
		if b != 0xFF {
			t.Fatalf("ones fill produced %02X", b)
		}
	}
}

func TestPatternVerifiable(t *testing.T) {
	for _, p := range []Pattern{PatternAllOnes, PatternAllZeros, PatternAlternating, PatternIncremental} {
		if !p.Verifiable() {
			t.Errorf("%v should be verifiable", p)
		}
	}
	if PatternRandom.Verifiable() {
		t.Error("random data cannot be verified by recomputation")
	}
}

func TestClassifyBytes(t *testing.T) {
	const capacity = 1 << 20
	tests := []struct {
		n     int64
		class SizeClass
		ok    bool
	}{
		{1, ClassByte, true},
		{256, ClassPage, true},
		{4096, ClassSector, true},
		{32768, ClassBlock32, true},
		{65536, ClassBlock64, true},
		{capacity, ClassWholeDevice, true},
		{512, 0, false},
	}
	for _, tt := range tests {
		class, ok := ClassifyBytes(tt.n, capacity)
		if ok != tt.ok || (ok && class != tt.class) {
			t.Errorf("ClassifyBytes(%d) = (%v, %v), want (%v, %v)", tt.n, class, ok, tt.class, tt.ok)
		}
	}

	// Whole-device rows need a known capacity.
	if _, ok := ClassifyBytes(capacity, 0); ok {
		t.Error("whole-device size must not classify without a capacity")
	}
}

func TestSizeClassBytes(t *testing.T) {
	const capacity = 1 << 22
	if got := ClassSector.Bytes(capacity); got != 4096 {
		t.Errorf("sector bytes = %d", got)
	}
	if got := ClassWholeDevice.Bytes(capacity); got != capacity {
		t.Errorf("whole-device bytes = %d", got)
	}
}
