package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"sonarchart/internal/observerproto"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asAny round-trips v through JSON so the validator sees what goes on the wire.
func asAny(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	sub := compile(t, "observer_subscribe.schema.json")
	frame := compile(t, "observer_frame.schema.json")
	tile := compile(t, "observer_tile.schema.json")

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(asAny(t, v)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(sub, observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		ViewRadius:      64,
		MaxPoints:       4096,
		Tiles:           true,
	})

	validate(frame, observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
		Tick:            12,
		NowMs:           600,
		Observer:        [2]int{16, 16},
		Ping:            observerproto.PingState{Active: true, X: 16, Y: 16, Radius: 22},
		Quality:         1,
		Pattern:         "forward",
		Points: []observerproto.PointState{
			{X: 20, Y: 16, Terrain: true, Opacity: 255},
			{X: -3, Y: 40, Fade: 2, Opacity: 128},
		},
		Stats: observerproto.ChartStats{Points: 2, Nodes: 1},
	})

	// An empty chart marshals points as null.
	validate(frame, observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
	})

	validate(tile, observerproto.TileMsg{
		Type:            observerproto.TypeTile,
		ProtocolVersion: observerproto.Version,
		CX:              -1,
		CY:              2,
		Size:            33,
		Seed:            73856093,
		Encoding:        observerproto.EncodingMaskRLE,
		Data:            "iQg=",
	})
	validate(tile, observerproto.TileEvictMsg{
		Type:            observerproto.TypeTileEvict,
		ProtocolVersion: observerproto.Version,
		CX:              4,
		CY:              -7,
	})
}

func TestSchemas_RejectMalformed(t *testing.T) {
	sub := compile(t, "observer_subscribe.schema.json")
	tile := compile(t, "observer_tile.schema.json")

	var bad any
	_ = json.Unmarshal([]byte(`{"type":"HELLO","protocol_version":"0.1"}`), &bad)
	if err := sub.Validate(bad); err == nil {
		t.Fatalf("expected SUBSCRIBE type check to fail")
	}

	_ = json.Unmarshal([]byte(`{"type":"TILE","protocol_version":"0.1","cx":0,"cy":0,"size":33,"seed":1,"encoding":"RAW","data":""}`), &bad)
	if err := tile.Validate(bad); err == nil {
		t.Fatalf("expected unknown tile encoding to fail")
	}
}
