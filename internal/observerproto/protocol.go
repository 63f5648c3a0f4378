package observerproto

// Version is the observer stream protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFrame     = "FRAME"
	TypeTile      = "TILE"
	TypeTileEvict = "TILE_EVICT"

	// EncodingMaskRLE is base64(uvarint runs) alternating water/land, water
	// first, row-major with x fastest.
	EncodingMaskRLE = "MASK_RLE_B64"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the view.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ViewRadius      int    `json:"view_radius"`
	MaxPoints       int    `json:"max_points"`
	Tiles           bool   `json:"tiles"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	RunID           string      `json:"run_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz    int    `json:"tick_rate_hz"`
	TileSize      int    `json:"tile_size"`
	WindowSize    int    `json:"window_size"`
	WorldSeed     int64  `json:"world_seed"`
	Threshold     int    `json:"threshold"`
	ChartBounds   [4]int `json:"chart_bounds"`
	FadeStages    int    `json:"fade_stages"`
	FadeStageMs   uint64 `json:"fade_stage_ms"`
	PingMaxRadius int    `json:"ping_max_radius"`
}

// Server -> Client. Chart contents around the observer, sent every tick
// (subject to the connection's frame rate limit).
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	NowMs           uint64 `json:"now_ms"`

	Observer [2]int    `json:"observer"`
	Ping     PingState `json:"ping"`
	Quality  int       `json:"quality"`
	Pattern  string    `json:"pattern,omitempty"`

	Points    []PointState `json:"points"`
	Truncated bool         `json:"truncated,omitempty"`
	Stats     ChartStats   `json:"stats"`
}

type PingState struct {
	Active bool `json:"active"`
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Radius int  `json:"radius"`
}

type PointState struct {
	X       int   `json:"x"`
	Y       int   `json:"y"`
	Terrain bool  `json:"terrain"`
	Fade    int   `json:"fade"`
	Opacity uint8 `json:"opacity"`
}

type ChartStats struct {
	Points             int    `json:"points"`
	Nodes              int    `json:"nodes"`
	Subdivisions       uint64 `json:"subdivisions"`
	FailedSubdivisions uint64 `json:"failed_subdivisions"`
	Overflowed         uint64 `json:"overflowed"`
}

// Server -> Client. Collision mask of a tile that entered the active window.
type TileMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CY              int    `json:"cy"`
	Size            int    `json:"size"`
	Seed            uint32 `json:"seed"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}

// Server -> Client. A tile left the active window.
type TileEvictMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CY              int    `json:"cy"`
}
