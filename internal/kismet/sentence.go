package kismet

import (
	"fmt"
	"strconv"
	"strings"
)

// Field sets requested from the server during the handshake. Sentence
// fields arrive in exactly this order.
var (
	NetworkFields = []string{"bssid", "type", "ssid", "rssi"}
	GPSFields     = []string{"lat", "lon", "fix"}
)

// Kind identifies the type of a parsed sentence.
type Kind int

const (
	KindUnknown Kind = iota
	KindTime
	KindServerInfo
	KindNetwork
	KindGPS
	KindProtocols
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindServerInfo:
		return "kismet"
	case KindNetwork:
		return "network"
	case KindGPS:
		return "gps"
	case KindProtocols:
		return "protocols"
	default:
		return "unknown"
	}
}

// Sentence is one decoded protocol line. The concrete type is one of
// Time, ServerInfo, Network, GPS, Protocols or Unknown.
type Sentence interface {
	Kind() Kind
}

// Time carries the server clock (*TIME:).
type Time struct {
	Epoch int64
}

// ServerInfo is the server banner (*KISMET:).
type ServerInfo struct {
	Raw string
}

// Network is a network sighting (*NETWORK:).
type Network struct {
	BSSID string
	Type  string
	SSID  string
	RSSI  float64
}

// GPS is a position report (*GPS:).
type GPS struct {
	Lat float64
	Lon float64
	Fix string
}

// Protocols lists the sentence types the server supports (*PROTOCOLS:).
type Protocols struct {
	Raw string
}

// Unknown is any line that is not a recognized sentence. Err is set when the
// line carried a known marker but its fields could not be decoded.
type Unknown struct {
	Raw string
	Err error
}

func (Time) Kind() Kind       { return KindTime }
func (ServerInfo) Kind() Kind { return KindServerInfo }
func (Network) Kind() Kind    { return KindNetwork }
func (GPS) Kind() Kind        { return KindGPS }
func (Protocols) Kind() Kind  { return KindProtocols }
func (Unknown) Kind() Kind    { return KindUnknown }

// Parse decodes a single line. It never fails; anything that cannot be
// decoded is returned as Unknown.
func Parse(raw string) Sentence {
	line := strings.TrimRight(raw, "\r\n")

	marker, rest, ok := splitMarker(line)
	if !ok {
		return Unknown{Raw: line}
	}

	switch marker {
	case "TIME":
		return parseTime(line, rest)
	case "KISMET":
		return ServerInfo{Raw: line}
	case "NETWORK":
		return parseNetwork(line, rest)
	case "GPS":
		return parseGPS(line, rest)
	case "PROTOCOLS":
		return Protocols{Raw: line}
	default:
		return Unknown{Raw: line}
	}
}

// splitMarker splits "*TYPE: payload" into TYPE and payload.
func splitMarker(line string) (string, string, bool) {
	if !strings.HasPrefix(line, "*") {
		return "", "", false
	}
	colon := strings.IndexByte(line, ':')
	if colon < 2 {
		return "", "", false
	}
	marker := line[1:colon]
	if strings.ContainsAny(marker, " \t") {
		return "", "", false
	}
	return marker, line[colon+1:], true
}

func parseTime(line, rest string) Sentence {
	f := strings.Fields(rest)
	if len(f) < 1 {
		return Unknown{Raw: line, Err: fmt.Errorf("kismet: time: missing epoch")}
	}
	epoch, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return Unknown{Raw: line, Err: fmt.Errorf("kismet: time: bad epoch %q", f[0])}
	}
	return Time{Epoch: epoch}
}

func parseNetwork(line, rest string) Sentence {
	f := splitQuoted(rest)
	if len(f) < len(NetworkFields) {
		return Unknown{Raw: line, Err: fmt.Errorf("kismet: network: got %d fields want %d", len(f), len(NetworkFields))}
	}
	rssi, err := strconv.ParseFloat(f[3], 64)
	if err != nil {
		return Unknown{Raw: line, Err: fmt.Errorf("kismet: network: bad rssi %q", f[3])}
	}
	return Network{BSSID: f[0], Type: f[1], SSID: f[2], RSSI: rssi}
}

func parseGPS(line, rest string) Sentence {
	f := strings.Fields(rest)
	if len(f) < len(GPSFields) {
		return Unknown{Raw: line, Err: fmt.Errorf("kismet: gps: got %d fields want %d", len(f), len(GPSFields))}
	}
	lat, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return Unknown{Raw: line, Err: fmt.Errorf("kismet: gps: bad lat %q", f[0])}
	}
	lon, err := strconv.ParseFloat(f[1], 64)
	if err != nil {
		return Unknown{Raw: line, Err: fmt.Errorf("kismet: gps: bad lon %q", f[1])}
	}
	return GPS{Lat: lat, Lon: lon, Fix: f[2]}
}

// splitQuoted tokenizes a sentence payload on whitespace. The server wraps
// free-text fields in 0x01 bytes; a wrapped span is one token even when it
// contains spaces or is empty. Bytes <= 0x01 or >= 0x80 are dropped from the
// token contents.
func splitQuoted(s string) []string {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
		open   bool
	)
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b == 0x01:
			quoted = !quoted
			open = true
		case isSpace(b):
			if quoted {
				cur.WriteByte(b)
				continue
			}
			if open {
				out = append(out, cur.String())
				cur.Reset()
				open = false
			}
		case b < 0x01 || b >= 0x80:
		default:
			cur.WriteByte(b)
			open = true
		}
	}
	if open {
		out = append(out, cur.String())
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
