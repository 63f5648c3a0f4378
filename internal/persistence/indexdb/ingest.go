package indexdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/sim/tuning"
	"sonarchart/internal/sim/world"
)

// IngestConfig configures the HTTP ingest backend, which posts batched tick
// telemetry to a remote collector instead of a local database.
type IngestConfig struct {
	Endpoint      string
	Token         string
	WorldID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained caps events held back after failed flushes.
	MaxRetained int
	Logger      logrus.FieldLogger
}

type IngestIndex struct {
	cfg        IngestConfig
	httpClient *http.Client
	log        logrus.FieldLogger

	ch   chan ingestEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	flushOK    atomic.Uint64
	flushFail  atomic.Uint64
	queueDrop  atomic.Uint64
	retainDrop atomic.Uint64
}

type ingestEvent struct {
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

type ingestTickPayload struct {
	RunID       string `json:"run_id"`
	Tick        uint64 `json:"tick"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Quality     int    `json:"quality"`
	PingActive  bool   `json:"ping_active,omitempty"`
	PingRadius  int    `json:"ping_radius,omitempty"`
	Added       int    `json:"added,omitempty"`
	Dropped     int    `json:"dropped,omitempty"`
	ChartPoints int    `json:"chart_points"`
	Digest      string `json:"digest"`
}

type ingestRunPayload struct {
	RunID        string          `json:"run_id"`
	TuningDigest string          `json:"tuning_digest"`
	Tuning       json.RawMessage `json:"tuning"`
	StartedAt    string          `json:"started_at"`
}

type IngestStats struct {
	FlushOKTotal       uint64
	FlushFailTotal     uint64
	QueueDroppedTotal  uint64
	RetainDroppedTotal uint64
}

func OpenIngest(cfg IngestConfig) (*IngestIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.WorldID = strings.TrimSpace(cfg.WorldID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("empty world id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	d := &IngestIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        cfg.Logger.WithField("component", "ingest"),
		ch:         make(chan ingestEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *IngestIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *IngestIndex) WriteTick(e world.TickLogEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	d.enqueue(ingestEvent{Kind: "tick", WorldID: d.cfg.WorldID, Payload: ingestTickPayload{
		RunID:       e.RunID,
		Tick:        e.Tick,
		X:           e.X,
		Y:           e.Y,
		Quality:     e.Quality,
		PingActive:  e.PingActive,
		PingRadius:  e.PingRadius,
		Added:       e.Added,
		Dropped:     e.Dropped,
		ChartPoints: e.ChartPoints,
		Digest:      e.Digest,
	}})
	return nil
}

func (d *IngestIndex) RecordRun(runID, worldID string, tune tuning.Tuning) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	d.enqueue(ingestEvent{Kind: "run", WorldID: worldID, Payload: ingestRunPayload{
		RunID:        runID,
		TuningDigest: hex.EncodeToString(sum[:]),
		Tuning:       b,
		StartedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}})
	return nil
}

func (d *IngestIndex) Stats() IngestStats {
	return IngestStats{
		FlushOKTotal:       d.flushOK.Load(),
		FlushFailTotal:     d.flushFail.Load(),
		QueueDroppedTotal:  d.queueDrop.Load(),
		RetainDroppedTotal: d.retainDrop.Load(),
	}
}

func (d *IngestIndex) enqueue(ev ingestEvent) {
	select {
	case d.ch <- ev:
	default:
		d.queueDrop.Add(1)
		d.log.WithField("kind", ev.Kind).Warn("ingest queue full; dropping event")
	}
}

func (d *IngestIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]ingestEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.log.WithError(err).WithField("batch", len(batch)).Warn("ingest flush failed; retaining batch")
			// Keep the newest events when the backlog outgrows the cap.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDrop.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.flushOK.Add(1)
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *IngestIndex) sendBatch(events []ingestEvent) error {
	body := struct {
		Events []ingestEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-sonar-ingest-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}
