package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"kismet-baro/internal/record"
)

type recordSummary struct {
	Points   int
	WithFix  int
	BSSIDs   map[string]int
	MinRSSI  float64
	MaxRSSI  float64
	MinAltM  float64
	MaxAltM  float64
	hasRange bool
}

func summarizeObservations(obs []record.Observation) recordSummary {
	s := recordSummary{BSSIDs: map[string]int{}}
	for _, o := range obs {
		s.Points++
		if o.HasFix {
			s.WithFix++
		}
		s.BSSIDs[strings.ToLower(o.BSSID)]++

		if !s.hasRange {
			s.MinRSSI, s.MaxRSSI = o.RSSI, o.RSSI
			s.MinAltM, s.MaxAltM = o.Altitude, o.Altitude
			s.hasRange = true
			continue
		}
		s.MinRSSI = math.Min(s.MinRSSI, o.RSSI)
		s.MaxRSSI = math.Max(s.MaxRSSI, o.RSSI)
		s.MinAltM = math.Min(s.MinAltM, o.Altitude)
		s.MaxAltM = math.Max(s.MaxAltM, o.Altitude)
	}
	return s
}

func printSummary(w io.Writer, path, ssid, bssid string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	all, err := record.ReadFile(path)
	if err != nil {
		return err
	}
	s := summarizeObservations(record.Select(all, ssid, bssid))

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "filter: ssid=%s bssid=%s\n", ssid, bssid)
	fmt.Fprintf(w, "records: %d\n", len(all))
	fmt.Fprintf(w, "data_points: %d\n", s.Points)
	fmt.Fprintf(w, "with_fix: %d\n", s.WithFix)
	if s.hasRange {
		fmt.Fprintf(w, "rssi: %g .. %g\n", s.MinRSSI, s.MaxRSSI)
		fmt.Fprintf(w, "altitude_m: %.2f .. %.2f\n", s.MinAltM, s.MaxAltM)
	}

	keys := make([]string, 0, len(s.BSSIDs))
	for k := range s.BSSIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "bssids: %d\n", len(keys))
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.BSSIDs[k])
	}
	return nil
}
