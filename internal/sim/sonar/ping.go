package sonar

type PingConfig struct {
	RadiusStep  int    // cells added per growth
	GrowEveryMs uint64 // minimum time between growths
	MaxRadius   int    // the ping ends once its radius passes this
	WaterStride int    // steps between water samples along a hit ray
}

func DefaultPingConfig() PingConfig {
	return PingConfig{
		RadiusStep:  2,
		GrowEveryMs: 50,
		MaxRadius:   64,
		WaterStride: 3,
	}
}

func (c PingConfig) withDefaults() PingConfig {
	d := DefaultPingConfig()
	if c.RadiusStep <= 0 {
		c.RadiusStep = d.RadiusStep
	}
	if c.GrowEveryMs == 0 {
		c.GrowEveryMs = d.GrowEveryMs
	}
	if c.MaxRadius <= 0 {
		c.MaxRadius = d.MaxRadius
	}
	if c.WaterStride <= 0 {
		c.WaterStride = d.WaterStride
	}
	return c
}

// Ping is an expanding sonar ring anchored where it was started.
type Ping struct {
	cfg PingConfig

	Active bool
	X, Y   int
	Radius int

	startedAt uint64
	lastGrow  uint64
}

func NewPing(cfg PingConfig) Ping {
	return Ping{cfg: cfg.withDefaults()}
}

// Start anchors a new ping at (x, y). It is a no-op while a ping is running.
func (p *Ping) Start(x, y int, now uint64) bool {
	if p.Active {
		return false
	}
	p.Active = true
	p.X, p.Y = x, y
	p.Radius = 0
	p.startedAt = now
	p.lastGrow = now
	return true
}

// Step grows the ring when GrowEveryMs has passed since the last growth and
// reports whether it did. The growth that carries the radius past MaxRadius
// is still reported; the ping is inactive afterwards.
func (p *Ping) Step(now uint64) bool {
	if !p.Active || now < p.lastGrow+p.cfg.GrowEveryMs {
		return false
	}
	p.lastGrow = now
	p.Radius += p.cfg.RadiusStep
	if p.Radius > p.cfg.MaxRadius {
		p.Active = false
	}
	return true
}

func (p *Ping) Cancel() { p.Active = false }

func (p *Ping) StartedAt() uint64 { return p.startedAt }
