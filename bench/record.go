package bench

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the column row every results log starts with.
const Header = "device_id,operation,block_size_bytes,address_hex,elapsed_microseconds,throughput_MBps,run_index,temperature_C,voltage_V,pattern,timestamp,notes"

// timestampLayout matches the log-store timestamp column.
const timestampLayout = "2006-01-02 15:04:05"

// Record is one benchmark trial as logged to the results store.
type Record struct {
	DeviceID       string // normalized hex identification
	Op             Operation
	BlockSize      int64
	Addr           int64
	ElapsedUS      uint64
	ThroughputMBps float64
	RunIndex       int
	TempC          float64
	VoltageV       float64
	Pattern        Pattern
	Timestamp      time.Time
	Notes          string
}

// Format renders the record as one log line in column order.
func (r Record) Format() string {
	return fmt.Sprintf("%s,%s,%d,0x%06X,%d,%.6f,%d,%.2f,%.2f,%s,%s,%s",
		r.DeviceID, r.Op, r.BlockSize, r.Addr,
		r.ElapsedUS, r.ThroughputMBps, r.RunIndex,
		r.TempC, r.VoltageV, r.Pattern,
		r.Timestamp.Format(timestampLayout), r.Notes)
}

// ParseRecord parses one data line back into a Record.
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 12 {
		return Record{}, fmt.Errorf("record has %d fields, want 12", len(fields))
	}

	var (
		r   Record
		err error
	)
	r.DeviceID = fields[0]
	if r.Op, err = ParseOperation(fields[1]); err != nil {
		return Record{}, err
	}
	if r.BlockSize, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return Record{}, fmt.Errorf("block size: %w", err)
	}
	if r.Addr, err = strconv.ParseInt(strings.TrimPrefix(fields[3], "0x"), 16, 64); err != nil {
		return Record{}, fmt.Errorf("address: %w", err)
	}
	if r.ElapsedUS, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
		return Record{}, fmt.Errorf("elapsed: %w", err)
	}
	if r.ThroughputMBps, err = strconv.ParseFloat(fields[5], 64); err != nil {
		return Record{}, fmt.Errorf("throughput: %w", err)
	}
	if r.RunIndex, err = strconv.Atoi(fields[6]); err != nil {
		return Record{}, fmt.Errorf("run index: %w", err)
	}
	if r.TempC, err = strconv.ParseFloat(fields[7], 64); err != nil {
		return Record{}, fmt.Errorf("temperature: %w", err)
	}
	if r.VoltageV, err = strconv.ParseFloat(fields[8], 64); err != nil {
		return Record{}, fmt.Errorf("voltage: %w", err)
	}
	if r.Pattern, err = ParsePattern(fields[9]); err != nil {
		return Record{}, err
	}
	if r.Timestamp, err = time.ParseInLocation(timestampLayout, fields[10], time.Local); err != nil {
		return Record{}, fmt.Errorf("timestamp: %w", err)
	}
	r.Notes = fields[11]
	return r, nil
}
