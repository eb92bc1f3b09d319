package record

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Header is the column layout of an observation file. The downstream overlay
// tooling looks columns up by name.
var Header = []string{"lat", "lon", "fix", "bssid", "type", "ssid", "rssi", "alt"}

// Observation is one network sighting correlated with the position fix and
// altitude current at the time it was processed.
type Observation struct {
	BSSID string  `json:"bssid"`
	Type  string  `json:"type"`
	SSID  string  `json:"ssid"`
	RSSI  float64 `json:"rssi"`

	// HasFix is false when no position had been reported yet; Lat, Lon and
	// Fix are then zero and written as empty cells. 0,0 is a valid fix.
	HasFix bool    `json:"has_fix"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Fix    string  `json:"fix"`

	Altitude float64 `json:"alt_m"`
}

func (o Observation) row() []string {
	lat, lon, fix := "", "", ""
	if o.HasFix {
		lat = strconv.FormatFloat(o.Lat, 'f', -1, 64)
		lon = strconv.FormatFloat(o.Lon, 'f', -1, 64)
		fix = o.Fix
	}
	return []string{
		lat,
		lon,
		fix,
		o.BSSID,
		o.Type,
		o.SSID,
		strconv.FormatFloat(o.RSSI, 'f', -1, 64),
		strconv.FormatFloat(o.Altitude, 'f', -1, 64),
	}
}

// Writer appends observations to a CSV file. Every Append is flushed and
// synced to stable storage before it returns.
type Writer struct {
	f      *os.File
	w      *bufio.Writer
	cw     *csv.Writer
	closed bool
}

var syncFile = (*os.File).Sync

// Create truncates or creates path and writes the header row.
func Create(path string) (*Writer, error) {
	if path == "" {
		return nil, errors.New("record: path is empty")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	bw := bufio.NewWriterSize(f, 4096)
	ww := &Writer{f: f, w: bw, cw: csv.NewWriter(bw)}
	if err := ww.writeRow(Header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return ww, nil
}

// Append writes one row, flushes it and forces it to disk.
func (ww *Writer) Append(obs Observation) error {
	if ww == nil || ww.closed {
		return errors.New("record: writer is closed")
	}
	return ww.writeRow(obs.row())
}

func (ww *Writer) writeRow(row []string) error {
	if err := ww.cw.Write(row); err != nil {
		return fmt.Errorf("record: write: %w", err)
	}
	ww.cw.Flush()
	if err := ww.cw.Error(); err != nil {
		return fmt.Errorf("record: write: %w", err)
	}
	if err := ww.w.Flush(); err != nil {
		return fmt.Errorf("record: flush: %w", err)
	}
	if err := syncFile(ww.f); err != nil {
		return fmt.Errorf("record: sync: %w", err)
	}
	return nil
}

func (ww *Writer) Path() string {
	if ww == nil || ww.f == nil {
		return ""
	}
	return ww.f.Name()
}

func (ww *Writer) Close() error {
	if ww == nil || ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}
