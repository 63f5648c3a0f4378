package chart

// FadeStage is the discrete age bucket of a point, 0 being freshly seen.
type FadeStage uint8

const FadeFull FadeStage = 0

func (c *Chart) stageAt(discoveredAt, now uint64) FadeStage {
	if now <= discoveredAt {
		return FadeFull
	}
	stage := (now - discoveredAt) / c.cfg.FadeStageMs
	if stage > uint64(c.cfg.FadeStages) {
		stage = uint64(c.cfg.FadeStages)
	}
	return FadeStage(stage)
}

func (c *Chart) expired(s FadeStage) bool {
	return int(s) >= c.cfg.FadeStages
}

// Opacity maps a stage to 0..255. With four stages this yields the familiar
// 255/192/128/64 ramp; expired stages are fully transparent.
func Opacity(s FadeStage, stages int) uint8 {
	if stages <= 0 || int(s) >= stages {
		return 0
	}
	v := 256 * (stages - int(s)) / stages
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
