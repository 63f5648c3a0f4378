package main

import (
	"fmt"
	"io"

	"sonarchart/internal/sim/world"
)

// writeWorldMetrics renders a minimal Prometheus text exposition.
func writeWorldMetrics(out io.Writer, st world.Status) {
	id := st.WorldID
	gauge := func(name, help string, v any) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s gauge\n", name)
		fmt.Fprintf(out, "%s{world=%q} %v\n", name, id, v)
	}
	gauge("sonar_world_tick", "Current world tick.", st.Tick)
	gauge("sonar_world_observers", "Connected observers.", st.Observers)
	gauge("sonar_chart_points", "Points held by the discovery chart.", st.ChartPoints)
	gauge("sonar_chart_nodes", "Quadtree nodes in use.", st.ChartNodes)
	gauge("sonar_raycast_quality", "Current ray caster quality level.", st.Quality)
	gauge("sonar_tiles_active", "Terrain tiles resident in the window.", st.TilesActive)
	gauge("sonar_ping_radius", "Radius of the active ping, 0 when idle.", st.PingRadius)

	counter := func(name, help string, v uint64) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s counter\n", name)
		fmt.Fprintf(out, "%s{world=%q} %d\n", name, id, v)
	}
	counter("sonar_chart_failed_subdivisions_total", "Subdivisions refused for lack of nodes.", st.FailedSubdivisions)
	counter("sonar_chart_overflowed_total", "Points kept in a full leaf that could not split.", st.Overflowed)
	counter("sonar_tile_load_failures_total", "Tiles that could not be generated or pooled.", st.LoadFailures)
}

func writeMirrorMetrics(out io.Writer, m *mirrorRuntime) {
	s, ok := m.Stats()
	if !ok {
		return
	}
	fmt.Fprintf(out, "# HELP sonar_mirror_queue_depth Object mirror queue depth.\n")
	fmt.Fprintf(out, "# TYPE sonar_mirror_queue_depth gauge\n")
	fmt.Fprintf(out, "sonar_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(out, "# HELP sonar_mirror_dropped_total Files dropped because the queue stayed saturated.\n")
	fmt.Fprintf(out, "# TYPE sonar_mirror_dropped_total counter\n")
	fmt.Fprintf(out, "sonar_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(out, "# HELP sonar_mirror_upload_success_total Successful uploads.\n")
	fmt.Fprintf(out, "# TYPE sonar_mirror_upload_success_total counter\n")
	fmt.Fprintf(out, "sonar_mirror_upload_success_total %d\n", s.UploadSuccessTotal)

	fmt.Fprintf(out, "# HELP sonar_mirror_upload_fail_total Uploads that failed after retry.\n")
	fmt.Fprintf(out, "# TYPE sonar_mirror_upload_fail_total counter\n")
	fmt.Fprintf(out, "sonar_mirror_upload_fail_total %d\n", s.UploadFailTotal)
}
