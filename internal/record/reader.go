package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Any matches every value in Select.
const Any = "any"

// Read parses an observation file. Columns are located by header name so
// files with a different column order are accepted.
func Read(r io.Reader) ([]Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("record: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, name := range Header {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("record: missing column %q", name)
		}
	}

	out := make([]Observation, 0, 256)
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("record: line %d: %w", line, err)
		}
		col := func(name string) string {
			i := idx[name]
			if i >= len(row) {
				return ""
			}
			return row[i]
		}

		obs := Observation{
			BSSID: col("bssid"),
			Type:  col("type"),
			SSID:  col("ssid"),
			Fix:   col("fix"),
		}
		if obs.RSSI, err = parseFloat(col("rssi")); err != nil {
			return nil, fmt.Errorf("record: line %d: rssi: %w", line, err)
		}
		if obs.Altitude, err = parseFloat(col("alt")); err != nil {
			return nil, fmt.Errorf("record: line %d: alt: %w", line, err)
		}
		if lat, lon := col("lat"), col("lon"); lat != "" && lon != "" {
			if obs.Lat, err = parseFloat(lat); err != nil {
				return nil, fmt.Errorf("record: line %d: lat: %w", line, err)
			}
			if obs.Lon, err = parseFloat(lon); err != nil {
				return nil, fmt.Errorf("record: line %d: lon: %w", line, err)
			}
			obs.HasFix = true
		}
		out = append(out, obs)
	}
	return out, nil
}

// ReadFile reads an observation file from disk.
func ReadFile(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Select returns the observations of one target network. Either ssid or
// bssid may be Any (or empty); when both are, every observation matches.
func Select(in []Observation, ssid, bssid string) []Observation {
	if ssid == "" {
		ssid = Any
	}
	if bssid == "" {
		bssid = Any
	}
	out := make([]Observation, 0, len(in))
	for _, o := range in {
		if ssid != Any && o.SSID != ssid {
			continue
		}
		if bssid != Any && !strings.EqualFold(o.BSSID, bssid) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
