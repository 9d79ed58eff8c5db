package bench

import (
	"fmt"
	"time"

	"github.com/gentam/flashbench"
)

// EnvProbe supplies the ambient readings logged with every trial. Probes that
// cannot read a value report zero.
type EnvProbe interface {
	TemperatureC() float64
	VoltageV() float64
}

type nullProbe struct{}

func (nullProbe) TemperatureC() float64 { return 0 }
func (nullProbe) VoltageV() float64     { return 0 }

// NullProbe logs zero temperature and voltage.
var NullProbe EnvProbe = nullProbe{}

const (
	// DefaultIterations is the trial count per size class and operation.
	DefaultIterations = 100

	// benchBase is where fixed-size trials touch the array, clear of offset
	// zero so stray data there is never part of a measurement. Whole-device
	// trials start at zero.
	benchBase = 0x050000

	// ioChunk is the transfer unit for streamed reads and programs within one
	// timed trial.
	ioChunk = 4096
)

// Runner executes benchmark series against one flash handle and appends one
// record per trial to the log store. Not safe for concurrent use; the bus is
// single-master anyway.
type Runner struct {
	Flash *flashbench.Flash
	Store LogStore
	Log   string // log file name within the store

	Env         EnvProbe
	Iterations  int
	BusClockMHz float64

	// Results accumulates the sample series of every completed RunSeries
	// call, in run order.
	Results []*SampleSeries

	// Progress, when set, receives one line per trial and per recovery.
	Progress func(format string, args ...any)

	now      func() time.Time
	deviceID string
	runIndex int
}

// NewRunner returns a runner with the default iteration count and a null
// environment probe.
func NewRunner(f *flashbench.Flash, store LogStore, logName string) *Runner {
	return &Runner{
		Flash:      f,
		Store:      store,
		Log:        logName,
		Env:        NullProbe,
		Iterations: DefaultIterations,
		now:        time.Now,
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.Progress != nil {
		r.Progress(format, args...)
	}
}

// prepare identifies the chip, makes sure the log has its header, and picks up
// the run index where the existing log left off. A chip that does not answer
// the identification probe aborts the suite: benchmarking a silent bus would
// only log adapter latencies.
func (r *Runner) prepare() error {
	id, live, err := r.Flash.Identify()
	if err != nil {
		return fmt.Errorf("benchmark aborted: %w", err)
	}
	if !live {
		return fmt.Errorf("benchmark aborted: chip stopped answering: %w",
			flashbench.ErrIdentificationUnavailable)
	}
	r.deviceID = id.Hex()

	if err := EnsureHeader(r.Store, r.Log); err != nil {
		return err
	}
	n, err := CountDataRows(r.Store, r.Log)
	if err != nil {
		return err
	}
	r.runIndex = n
	return nil
}

// record appends one trial to the log and bumps the run index.
func (r *Runner) record(op Operation, blockSize, addr int64, elapsed time.Duration,
	throughputBytes int64, pattern Pattern, notes string) error {

	us := uint64(elapsed.Microseconds())
	rec := Record{
		DeviceID:       r.deviceID,
		Op:             op,
		BlockSize:      blockSize,
		Addr:           addr,
		ElapsedUS:      us,
		ThroughputMBps: MBps(throughputBytes, float64(us)),
		RunIndex:       r.runIndex,
		TempC:          r.Env.TemperatureC(),
		VoltageV:       r.Env.VoltageV(),
		Pattern:        pattern,
		Timestamp:      r.now(),
		Notes:          notes,
	}
	if err := r.Store.AppendLine(r.Log, rec.Format()); err != nil {
		return err
	}
	r.runIndex++
	return nil
}

// notesTag builds the per-series notes column, e.g.
// "erase_bench_1-sector_prefilled@10MHz".
func (r *Runner) notesTag(op Operation, class SizeClass, prefilled bool) string {
	tag := fmt.Sprintf("%s_bench_%s", op, class.Label())
	if prefilled {
		tag += "_prefilled"
	}
	return fmt.Sprintf("%s@%.0fMHz", tag, r.BusClockMHz)
}

// spanFor resolves the class to its block size and base address, clamped to
// the device capacity.
func (r *Runner) spanFor(class SizeClass) (base, blockSize int64) {
	capacity := r.Flash.Capacity()
	blockSize = class.Bytes(capacity)
	if class == ClassWholeDevice {
		return 0, capacity
	}
	base = benchBase
	if base+blockSize > capacity {
		base = 0
	}
	if blockSize > capacity {
		blockSize = capacity
	}
	return base, blockSize
}

// RunSeries runs the configured number of trials for one size class and
// operation and appends their records to the log. The pattern applies to
// program data and erase prefills; reads ignore it.
func (r *Runner) RunSeries(class SizeClass, op Operation, pattern Pattern) (*SampleSeries, error) {
	if err := r.prepare(); err != nil {
		return nil, err
	}

	base, blockSize := r.spanFor(class)
	series := &SampleSeries{Class: class, Op: op, BlockSize: blockSize, BaseAddr: base}

	var err error
	switch op {
	case OpRead:
		err = r.runReads(series, pattern)
	case OpProgram:
		err = r.runPrograms(series, pattern)
	case OpErase:
		err = r.runErases(series, pattern)
	default:
		err = fmt.Errorf("unknown operation %v", op)
	}
	if err != nil {
		return series, err
	}

	r.Results = append(r.Results, series)
	return series, nil
}

// runReads times streamed reads of the full span. Reads have no data pattern;
// the log column carries the none marker. A trial that fails on the bus is
// skipped without a sample; only log-store failures abort the series.
func (r *Runner) runReads(s *SampleSeries, _ Pattern) error {
	buf := make([]byte, min(s.BlockSize, ioChunk))
	notes := r.notesTag(OpRead, s.Class, false)

	for i := 0; i < r.Iterations; i++ {
		t0 := r.now()
		if err := r.readSpan(s.BaseAddr, s.BlockSize, buf); err != nil {
			r.logf("read %s trial %d/%d skipped: %v", s.Class.Label(), i+1, r.Iterations, err)
			continue
		}
		elapsed := r.now().Sub(t0)

		s.Add(float64(elapsed.Microseconds()))
		if err := r.record(OpRead, s.BlockSize, s.BaseAddr, elapsed, s.BlockSize, PatternNone, notes); err != nil {
			return err
		}
		r.logf("read %s trial %d/%d: %v", s.Class.Label(), i+1, r.Iterations, elapsed)
	}
	return nil
}

// readSpan streams the span through buf.
func (r *Runner) readSpan(addr, size int64, buf []byte) error {
	for off := int64(0); off < size; {
		n := min(size-off, int64(len(buf)))
		if err := r.Flash.ReadInto(addr+off, buf[:n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// runPrograms erases the span outside the measurement, then times a streamed
// page program of the pattern over it. A trial whose setup or program fails is
// skipped without a sample; only log-store failures abort the series.
func (r *Runner) runPrograms(s *SampleSeries, pattern Pattern) error {
	if pattern == PatternNone {
		pattern = PatternAlternating
	}
	notes := r.notesTag(OpProgram, s.Class, false)

	for i := 0; i < r.Iterations; i++ {
		if err := r.Flash.Unprotect(); err != nil {
			r.logf("program %s trial %d/%d skipped: unprotect: %v", s.Class.Label(), i+1, r.Iterations, err)
			continue
		}
		if err := r.Flash.EraseSpan(s.BaseAddr, s.BlockSize); err != nil {
			r.logf("program %s trial %d/%d skipped: pre-erase: %v", s.Class.Label(), i+1, r.Iterations, err)
			continue
		}

		t0 := r.now()
		if err := r.programPattern(s.BaseAddr, s.BlockSize, pattern); err != nil {
			r.logf("program %s trial %d/%d skipped: %v", s.Class.Label(), i+1, r.Iterations, err)
			continue
		}
		elapsed := r.now().Sub(t0)

		s.Add(float64(elapsed.Microseconds()))
		if err := r.record(OpProgram, s.BlockSize, s.BaseAddr, elapsed, s.BlockSize, pattern, notes); err != nil {
			return err
		}
		r.logf("program %s trial %d/%d: %v", s.Class.Label(), i+1, r.Iterations, elapsed)
	}
	return nil
}

// runErases prefills the span with the pattern before every trial so each
// erase does real work, verifies the prefill landed, then times the erase
// alone. A trial whose prefill fails verification, or whose prefill or erase
// errors on the bus, is skipped and the span recovered where possible; its
// slot yields no sample and only log-store failures abort the series.
// Throughput uses the physical sector-aligned byte count, since that is what
// the chip actually erased.
func (r *Runner) runErases(s *SampleSeries, pattern Pattern) error {
	if pattern == PatternNone {
		pattern = PatternAlternating
	}
	start, physical := flashbench.AlignSpan(s.BaseAddr, s.BlockSize)
	notes := r.notesTag(OpErase, s.Class, true)

	// Known-clean starting state; a failure here surfaces again per trial.
	if err := r.Flash.Unprotect(); err != nil {
		r.logf("erase series: unprotect: %v", err)
	}
	if err := r.Flash.EraseSpan(s.BaseAddr, s.BlockSize); err != nil {
		r.logf("erase series: initial clean: %v", err)
	}

	for i := 0; i < r.Iterations; i++ {
		if err := r.Flash.Unprotect(); err != nil {
			r.logf("erase %s trial %d/%d skipped: unprotect: %v", s.Class.Label(), i+1, r.Iterations, err)
			continue
		}
		if err := r.programPattern(start, physical, pattern); err != nil {
			r.logf("erase %s trial %d/%d skipped: prefill: %v", s.Class.Label(), i+1, r.Iterations, err)
			continue
		}
		if pattern.Verifiable() {
			if ok, err := r.verifyPrefill(start, physical, pattern); err != nil {
				r.logf("erase %s trial %d/%d skipped: verify: %v", s.Class.Label(), i+1, r.Iterations, err)
				continue
			} else if !ok {
				r.logf("erase %s trial %d/%d: prefill verify failed, recovering",
					s.Class.Label(), i+1, r.Iterations)
				if err := r.Flash.EraseSpan(s.BaseAddr, s.BlockSize); err != nil {
					r.logf("erase %s trial %d/%d: recovery: %v", s.Class.Label(), i+1, r.Iterations, err)
				}
				continue
			}
		}

		elapsed, err := r.Flash.TimeErase(s.BaseAddr, s.BlockSize)
		if err != nil {
			r.logf("erase %s trial %d/%d skipped: %v", s.Class.Label(), i+1, r.Iterations, err)
			continue
		}

		s.Add(float64(elapsed.Microseconds()))
		if err := r.record(OpErase, s.BlockSize, s.BaseAddr, elapsed, physical, pattern, notes); err != nil {
			return err
		}
		r.logf("erase %s trial %d/%d: %v", s.Class.Label(), i+1, r.Iterations, elapsed)
	}
	return nil
}

// programPattern streams the pattern over the span in chunks. It is both the
// timed body of a program trial and the untimed erase prefill.
func (r *Runner) programPattern(addr, size int64, pattern Pattern) error {
	buf := make([]byte, min(size, ioChunk))
	for off := int64(0); off < size; {
		n := min(size-off, int64(len(buf)))
		pattern.Fill(buf[:n], off)
		if err := r.Flash.Program(addr+off, buf[:n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// verifyPrefill reads the span back and checks it against the recomputed
// pattern. A mismatch is a skippable condition, not an error.
func (r *Runner) verifyPrefill(start, physical int64, pattern Pattern) (bool, error) {
	got := make([]byte, min(physical, ioChunk))
	want := make([]byte, len(got))
	for off := int64(0); off < physical; {
		n := min(physical-off, int64(len(got)))
		if err := r.Flash.ReadInto(start+off, got[:n]); err != nil {
			return false, err
		}
		pattern.Fill(want[:n], off)
		for i := int64(0); i < n; i++ {
			if got[i] != want[i] {
				return false, nil
			}
		}
		off += n
	}
	return true, nil
}

// RunSuite runs every operation over the given classes in order. The caller
// decides whether the whole-device class is in the list.
func (r *Runner) RunSuite(classes []SizeClass, pattern Pattern) error {
	for _, class := range classes {
		for _, op := range Operations() {
			if _, err := r.RunSeries(class, op, pattern); err != nil {
				return fmt.Errorf("%s %s: %w", op, class.Label(), err)
			}
		}
	}
	return nil
}
