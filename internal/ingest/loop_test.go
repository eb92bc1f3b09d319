package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"kismet-baro/internal/record"
)

type fakeConn struct {
	lines   []string
	readErr error

	dialErr   error
	enableErr error

	dialed  bool
	enabled bool
	closed  bool
}

func (f *fakeConn) Dial(ctx context.Context) error {
	f.dialed = true
	return f.dialErr
}

func (f *fakeConn) Enable() error {
	f.enabled = true
	return f.enableErr
}

func (f *fakeConn) ReadLine() (string, error) {
	if len(f.lines) == 0 {
		if f.readErr != nil {
			return "", f.readErr
		}
		return "", io.EOF
	}
	l := f.lines[0]
	f.lines = f.lines[1:]
	return l, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

type fakeAltitude struct {
	alt   float64
	err   error
	calls int
}

func (f *fakeAltitude) Altitude() (float64, error) {
	f.calls++
	return f.alt, f.err
}

type memSink struct {
	obs []record.Observation
	err error
}

func (m *memSink) Append(obs record.Observation) error {
	if m.err != nil {
		return m.err
	}
	m.obs = append(m.obs, obs)
	return nil
}

type countNotifier struct {
	n   int
	err error
}

func (c *countNotifier) Notify(record.Observation) error {
	c.n++
	return c.err
}

type harness struct {
	loop *Loop
	conn *fakeConn
	alt  *fakeAltitude
	sink *memSink
	logs *bytes.Buffer
}

func newHarness(t *testing.T, lines ...string) *harness {
	t.Helper()
	h := &harness{
		conn: &fakeConn{lines: lines},
		alt:  &fakeAltitude{alt: 250},
		sink: &memSink{},
		logs: &bytes.Buffer{},
	}
	l, err := New(Config{
		Conn:        h.conn,
		Altitude:    h.alt,
		Sink:        h.sink,
		BurstWindow: DefaultBurstWindow,
		Logger:      log.New(h.logs, "", 0),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	h.loop = l
	return h
}

func (h *harness) feed(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if err := h.loop.Handle(line); err != nil {
			t.Fatalf("Handle(%q) error: %v", line, err)
		}
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{name: "Conn", cfg: Config{Altitude: &fakeAltitude{}, Sink: &memSink{}}},
		{name: "Altitude", cfg: Config{Conn: &fakeConn{}, Sink: &memSink{}}},
		{name: "Sink", cfg: Config{Conn: &fakeConn{}, Altitude: &fakeAltitude{}}},
		{name: "NegativeWindow", cfg: Config{Conn: &fakeConn{}, Altitude: &fakeAltitude{}, Sink: &memSink{}, BurstWindow: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestHandle_NetworkInsideBurstSuppressed(t *testing.T) {
	h := newHarness(t)
	h.feed(t,
		"*TIME: 100",
		"*GPS: 1.0 2.0 ok",
		"*NETWORK: aa:bb ap myssid -40",
	)

	if len(h.sink.obs) != 0 {
		t.Fatalf("records=%d want 0", len(h.sink.obs))
	}
	fix, ok := h.loop.Position()
	if !ok {
		t.Fatalf("expected position set during burst")
	}
	if fix != (Fix{Lat: 1.0, Lon: 2.0, Fix: "ok"}) {
		t.Fatalf("fix=%+v", fix)
	}
	if h.alt.calls != 0 {
		t.Fatalf("altitude sampled %d times during burst", h.alt.calls)
	}
}

func TestHandle_NetworkAfterBurstRecorded(t *testing.T) {
	h := newHarness(t)
	h.feed(t,
		"*TIME: 100",
		"*TIME: 103",
		"*GPS: 1.0 2.0 ok",
		"*NETWORK: aa:bb ap myssid -40",
	)

	if len(h.sink.obs) != 1 {
		t.Fatalf("records=%d want 1", len(h.sink.obs))
	}
	want := record.Observation{
		BSSID: "aa:bb", Type: "ap", SSID: "myssid", RSSI: -40,
		HasFix: true, Lat: 1.0, Lon: 2.0, Fix: "ok",
		Altitude: 250,
	}
	if h.sink.obs[0] != want {
		t.Fatalf("obs=%+v want %+v", h.sink.obs[0], want)
	}
}

func TestHandle_NetworkBeforeAnyTimeSuppressed(t *testing.T) {
	h := newHarness(t)
	h.feed(t, "*NETWORK: aa:bb ap myssid -40")
	if len(h.sink.obs) != 0 {
		t.Fatalf("records=%d want 0", len(h.sink.obs))
	}
	if st := h.loop.Status(); st.Suppressed != 1 || !st.InBurst {
		t.Fatalf("status=%+v", st)
	}
}

func TestHandle_NetworkWithoutFix(t *testing.T) {
	h := newHarness(t)
	h.feed(t,
		"*TIME: 100",
		"*TIME: 102",
		"*NETWORK: aa:bb ap myssid -40",
	)
	if len(h.sink.obs) != 1 {
		t.Fatalf("records=%d want 1", len(h.sink.obs))
	}
	obs := h.sink.obs[0]
	if obs.HasFix || obs.Lat != 0 || obs.Lon != 0 || obs.Fix != "" {
		t.Fatalf("expected empty position, got %+v", obs)
	}
}

func TestHandle_UsesFixCurrentAtProcessing(t *testing.T) {
	h := newHarness(t)
	h.feed(t,
		"*TIME: 100",
		"*TIME: 102",
		"*GPS: 1 1 3",
		"*NETWORK: aa:bb ap first -40",
		"*GPS: 2 2 3",
		"*NETWORK: cc:dd ap second -50",
	)
	if len(h.sink.obs) != 2 {
		t.Fatalf("records=%d want 2", len(h.sink.obs))
	}
	if h.sink.obs[0].Lat != 1 || h.sink.obs[1].Lat != 2 {
		t.Fatalf("lat=%v,%v want 1,2", h.sink.obs[0].Lat, h.sink.obs[1].Lat)
	}
	if h.alt.calls != 2 {
		t.Fatalf("altitude calls=%d want 2", h.alt.calls)
	}
}

func TestHandle_MalformedNetworkDoesNotStopLoop(t *testing.T) {
	h := newHarness(t)
	h.feed(t,
		"*TIME: 100",
		"*TIME: 102",
		"*NETWORK: aa:bb ap myssid",
		"*NETWORK: cc:dd ap other -60",
	)
	if len(h.sink.obs) != 1 {
		t.Fatalf("records=%d want 1", len(h.sink.obs))
	}
	if h.sink.obs[0].BSSID != "cc:dd" {
		t.Fatalf("bssid=%q", h.sink.obs[0].BSSID)
	}
	if !strings.Contains(h.logs.String(), "malformed sentence") {
		t.Fatalf("expected malformed sentence log, got %q", h.logs.String())
	}
	got := h.loop.Status().RecentUnknown
	if len(got) != 1 {
		t.Fatalf("recent=%+v want 1 entry", got)
	}
	if got[0].Raw != "*NETWORK: aa:bb ap myssid" || !strings.Contains(got[0].Error, "got 3 fields want 4") {
		t.Fatalf("recent=%+v", got[0])
	}
}

func TestHandle_ServerInfoLoggedUnknownLogged(t *testing.T) {
	h := newHarness(t)
	h.feed(t,
		"*KISMET: 0.0.0 1356998400 \x01Kismet\x01",
		"*PROTOCOLS: KISMET,TIME,NETWORK,GPS",
		"*TIME: 1",
		"*TIME: 5",
		"*ACK: 0 OK",
		"",
	)
	out := h.logs.String()
	if !strings.Contains(out, "kismet server info") {
		t.Fatalf("missing server info log: %q", out)
	}
	if !strings.Contains(out, `unrecognized sentence: "*ACK: 0 OK"`) {
		t.Fatalf("missing unknown log: %q", out)
	}
	if strings.Contains(out, "PROTOCOLS") {
		t.Fatalf("protocols should not be logged: %q", out)
	}
}

func TestHandle_AltitudeFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.alt.err = errors.New("i2c timeout")
	h.feed(t, "*TIME: 0", "*TIME: 2")
	err := h.loop.Handle("*NETWORK: aa:bb ap x -1")
	if err == nil || !strings.Contains(err.Error(), "i2c timeout") {
		t.Fatalf("err=%v", err)
	}
	if len(h.sink.obs) != 0 {
		t.Fatalf("records=%d want 0", len(h.sink.obs))
	}
}

func TestHandle_SinkFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("disk full")
	h.feed(t, "*TIME: 0", "*TIME: 2")
	if err := h.loop.Handle("*NETWORK: aa:bb ap x -1"); err == nil {
		t.Fatalf("expected append error")
	}
}

func TestHandle_NotifierErrorIsLogged(t *testing.T) {
	h := newHarness(t)
	ok := &countNotifier{}
	bad := &countNotifier{err: errors.New("broker down")}
	h.loop.cfg.Notifiers = []Notifier{bad, nil, ok}

	h.feed(t, "*TIME: 0", "*TIME: 2", "*NETWORK: aa:bb ap x -1")
	if ok.n != 1 || bad.n != 1 {
		t.Fatalf("notified ok=%d bad=%d want 1,1", ok.n, bad.n)
	}
	if !strings.Contains(h.logs.String(), "broker down") {
		t.Fatalf("expected notifier error log")
	}
}

func TestRun_HandshakeThenStreamUntilEOF(t *testing.T) {
	h := newHarness(t,
		"*KISMET: 0.0.0 1 \x01Kismet\x01",
		"*TIME: 10",
		"*NETWORK: 00:11 ap replayed -80",
		"*TIME: 12",
		"*GPS: 45.5 -122.9 3",
		"*NETWORK: 00:22 ap live -42",
	)

	err := h.loop.Run(context.Background())
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("err=%v want ErrStreamClosed", err)
	}
	if !h.conn.dialed || !h.conn.enabled || !h.conn.closed {
		t.Fatalf("conn=%+v", h.conn)
	}
	if len(h.sink.obs) != 1 || h.sink.obs[0].SSID != "live" {
		t.Fatalf("records=%+v", h.sink.obs)
	}

	st := h.loop.Status()
	if st.State != StateClosed {
		t.Fatalf("state=%q want %q", st.State, StateClosed)
	}
	if st.Recorded != 1 || st.Suppressed != 1 {
		t.Fatalf("recorded=%d suppressed=%d", st.Recorded, st.Suppressed)
	}
	if st.StartEpoch == nil || *st.StartEpoch != 10 || st.CurrentEpoch != 12 {
		t.Fatalf("epochs start=%v current=%d", st.StartEpoch, st.CurrentEpoch)
	}

	if err := h.loop.Run(context.Background()); err == nil {
		t.Fatalf("expected second Run to fail")
	}
}

func TestRun_DialFailure(t *testing.T) {
	h := newHarness(t)
	h.conn.dialErr = errors.New("connection refused")
	err := h.loop.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connect") {
		t.Fatalf("err=%v", err)
	}
	if h.conn.enabled {
		t.Fatalf("handshake sent after failed dial")
	}
	if st := h.loop.Status(); st.State != StateClosed || st.LastError == "" {
		t.Fatalf("status=%+v", st)
	}
}

func TestRun_ReadError(t *testing.T) {
	h := newHarness(t, "*TIME: 1")
	h.conn.readErr = errors.New("connection reset by peer")
	err := h.loop.Run(context.Background())
	if err == nil || errors.Is(err, ErrStreamClosed) {
		t.Fatalf("err=%v want read error", err)
	}
}

func TestRun_HandshakeFailure(t *testing.T) {
	h := newHarness(t)
	h.conn.enableErr = errors.New("broken pipe")
	if err := h.loop.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "handshake") {
		t.Fatalf("err=%v", err)
	}
}
