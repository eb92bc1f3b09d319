package ingest

// DefaultBurstWindow is how long (in server time units) after the first
// *TIME the server is assumed to still be replaying its network history.
const DefaultBurstWindow int64 = 2

// Clock tracks the server time of the session.
type Clock struct {
	window  int64
	started bool
	start   int64
	current int64
}

func NewClock(window int64) *Clock {
	if window < 0 {
		window = 0
	}
	return &Clock{window: window}
}

// Observe records a server time. The first call fixes the session start.
func (c *Clock) Observe(epoch int64) {
	if !c.started {
		c.started = true
		c.start = epoch
	}
	c.current = epoch
}

// InBurstWindow reports whether sentences should still be treated as part of
// the history replay. It is true until a *TIME has been seen.
func (c *Clock) InBurstWindow() bool {
	if !c.started {
		return true
	}
	return c.current-c.start < c.window
}

// Start returns the first observed server time.
func (c *Clock) Start() (int64, bool) { return c.start, c.started }

func (c *Clock) Current() int64 { return c.current }

// Fix is a position report.
type Fix struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Fix string  `json:"fix"`
}

// Position holds the latest fix. Updates overwrite unconditionally.
type Position struct {
	fix Fix
	set bool
}

func (p *Position) Update(f Fix) {
	p.fix = f
	p.set = true
}

// Current returns the latest fix, or false before the first update.
func (p *Position) Current() (Fix, bool) {
	return p.fix, p.set
}
