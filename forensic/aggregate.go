// Package forensic compares benchmark aggregates against the reference chip
// database: per-class predictions, candidate sets, and a scored final guess
// for the attached part.
package forensic

import (
	"github.com/gentam/flashbench/bench"
)

// Aggregates is the per-class statistical view of one results log. Read
// samples are kept both as MiB/s throughput (for database matching) and as
// millisecond latency (for the report summary); program and erase samples are
// millisecond latencies.
type Aggregates struct {
	SckMHz   float64
	Capacity int64 // bytes; 0 when unknown, which excludes whole-device rows

	ReadMBps  map[bench.SizeClass]bench.Stats
	ReadLatMS map[bench.SizeClass]bench.Stats
	ProgramMS map[bench.SizeClass]bench.Stats
	EraseMS   map[bench.SizeClass]bench.Stats
}

// Collect classifies each record by block size and summarizes per class.
// Throughput is recomputed from block size and elapsed time rather than
// trusting the logged column; rows with a non-positive elapsed time or an
// unrecognized block size are dropped.
func Collect(records []bench.Record, capacity int64, sckMHz float64) *Aggregates {
	readMBps := map[bench.SizeClass][]float64{}
	readLat := map[bench.SizeClass][]float64{}
	programMS := map[bench.SizeClass][]float64{}
	eraseMS := map[bench.SizeClass][]float64{}

	for _, rec := range records {
		class, ok := bench.ClassifyBytes(rec.BlockSize, capacity)
		if !ok || rec.ElapsedUS == 0 {
			continue
		}
		us := float64(rec.ElapsedUS)

		switch rec.Op {
		case bench.OpRead:
			if rec.BlockSize > 0 {
				if mbps := bench.MBps(rec.BlockSize, us); mbps > 0 {
					readMBps[class] = append(readMBps[class], mbps)
				}
				readLat[class] = append(readLat[class], us/1000)
			}
		case bench.OpProgram:
			programMS[class] = append(programMS[class], us/1000)
		case bench.OpErase:
			eraseMS[class] = append(eraseMS[class], us/1000)
		}
	}

	a := &Aggregates{
		SckMHz:    sckMHz,
		Capacity:  capacity,
		ReadMBps:  map[bench.SizeClass]bench.Stats{},
		ReadLatMS: map[bench.SizeClass]bench.Stats{},
		ProgramMS: map[bench.SizeClass]bench.Stats{},
		EraseMS:   map[bench.SizeClass]bench.Stats{},
	}
	for _, class := range bench.Classes() {
		a.ReadMBps[class] = bench.Summarize(readMBps[class])
		a.ReadLatMS[class] = bench.Summarize(readLat[class])
		a.ProgramMS[class] = bench.Summarize(programMS[class])
		a.EraseMS[class] = bench.Summarize(eraseMS[class])
	}
	return a
}

// HasMeasurements reports whether any class of any operation has samples.
func (a *Aggregates) HasMeasurements() bool {
	for _, class := range bench.Classes() {
		if a.ReadMBps[class].Count > 0 || a.ProgramMS[class].Count > 0 || a.EraseMS[class].Count > 0 {
			return true
		}
	}
	return false
}

// classBytes resolves the logical byte count of a class; whole-device needs a
// known capacity.
func (a *Aggregates) classBytes(class bench.SizeClass) (int64, bool) {
	n := class.Bytes(a.Capacity)
	if n <= 0 {
		return 0, false
	}
	return n, true
}
