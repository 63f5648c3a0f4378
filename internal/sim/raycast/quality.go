package raycast

import "github.com/sirupsen/logrus"

func clampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}

// Quality is the current sampling level: 0 traces every ray of the full
// pattern, higher levels trace fewer and narrower fans.
func (c *Caster) Quality() int { return c.quality }

func (c *Caster) SetQuality(level int) {
	c.quality = clampQuality(level)
}

// AdaptivePattern picks the pattern for the current quality level.
func (c *Caster) AdaptivePattern(preferPerformance bool) *Pattern {
	switch c.quality {
	case 0:
		if preferPerformance {
			return &c.forward
		}
		return &c.full
	case 1:
		return &c.forward
	default:
		return &c.sparse
	}
}

// ReportFrame feeds one frame's duration into the quality controller. The
// worst frame since the last check is compared to the budget every
// CheckEveryMs: more than twice the budget degrades one level, less than half
// improves one level. Each direction has its own cooldown since the last
// change, so the level moves at most one step per check. Reports true when
// the level changed.
func (c *Caster) ReportFrame(elapsedMs, nowMs uint64) bool {
	if elapsedMs > c.worstFrame {
		c.worstFrame = elapsedMs
	}
	if nowMs < c.lastCheck+c.cfg.CheckEveryMs {
		return false
	}
	worst := c.worstFrame
	c.worstFrame = 0
	c.lastCheck = nowMs

	sinceChange := nowMs - c.lastChange
	budget := c.cfg.FrameBudgetMs
	prev := c.quality
	switch {
	case worst > 2*budget && c.quality < MaxQuality && sinceChange >= c.cfg.DegradeCooldownMs:
		c.quality++
		c.stats.Degrades++
	case 2*worst < budget && c.quality > MinQuality && sinceChange >= c.cfg.ImproveCooldownMs:
		c.quality--
		c.stats.Improves++
	default:
		return false
	}
	c.lastChange = nowMs
	c.log.WithFields(logrus.Fields{
		"from":     prev,
		"to":       c.quality,
		"worst_ms": worst,
		"budget":   budget,
	}).Debug("ray quality changed")
	return true
}
