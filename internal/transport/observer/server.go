package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sonarchart/internal/observerproto"
	"sonarchart/internal/sim/world"
)

type Options struct {
	// FramesPerSec caps FRAME messages per connection; 0 disables the cap.
	FramesPerSec float64
	Burst        int
	// AllowRemote serves non-loopback clients.
	AllowRemote bool
}

type Server struct {
	world *world.World
	log   logrus.FieldLogger
	opts  Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(w *world.World, logger logrus.FieldLogger, opts Options) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Server{
		world: w,
		log:   logger.WithField("component", "observer"),
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		b := cfg.Pipeline.Chart.Bounds
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			RunID:           cfg.RunID,
			Tick:            s.world.CurrentTick(),
			WorldParams: observerproto.WorldParams{
				TickRateHz:    cfg.TickRateHz,
				TileSize:      cfg.Pipeline.Chunks.TileSize,
				WindowSize:    cfg.Pipeline.Chunks.WindowSize,
				WorldSeed:     cfg.Seed,
				Threshold:     int(cfg.Pipeline.Chunks.Threshold),
				ChartBounds:   [4]int{int(b.MinX), int(b.MinY), int(b.MaxX), int(b.MaxY)},
				FadeStages:    cfg.Pipeline.Chart.FadeStages,
				FadeStageMs:   cfg.Pipeline.Chart.FadeStageMs,
				PingMaxRadius: cfg.Pipeline.Ping.MaxRadius,
			},
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// StatusHandler serves the latest world status snapshot.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.world.Status())
	}
}

// PingHandler queues a ping at the observer's position for the next tick.
func (s *Server) PingHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if err := s.world.RequestPing(); err != nil {
			http.Error(rw, err.Error(), http.StatusTooManyRequests)
			return
		}
		rw.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		normalizeSubscribe(&sub)

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		log := s.log.WithFields(logrus.Fields{"session": sid, "remote": r.RemoteAddr})
		tickOut := make(chan []byte, 8)
		dataOut := make(chan []byte, 256)

		joinReq := world.ObserverJoinRequest{
			SessionID:  sid,
			TickOut:    tickOut,
			DataOut:    dataOut,
			ViewRadius: sub.ViewRadius,
			MaxPoints:  sub.MaxPoints,
			Tiles:      sub.Tiles,
		}
		select {
		case s.world.ObserverJoin() <- joinReq:
		default:
			log.Warn("observer join rejected: world busy")
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer func() {
			select {
			case s.world.ObserverLeave() <- sid:
			default:
				// World loop is stopping; nothing else to do.
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		limiter := newFrameLimiter(s.opts.FramesPerSec, s.opts.Burst)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		var dropped atomic.Uint64
		go func() {
			write := func(b []byte) error {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				return conn.WriteMessage(websocket.TextMessage, b)
			}
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-dataOut:
					if !ok {
						writeErr <- nil
						return
					}
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
				case b, ok := <-tickOut:
					if !ok {
						writeErr <- nil
						return
					}
					// Drop frames over the per-connection rate.
					if !limiter.Allow() {
						dropped.Add(1)
						continue
					}
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		log.Info("observer connected")

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
				continue
			}
			normalizeSubscribe(&sub)
			req := world.ObserverSubscribeRequest{
				SessionID:  sid,
				ViewRadius: sub.ViewRadius,
				MaxPoints:  sub.MaxPoints,
				Tiles:      sub.Tiles,
			}
			select {
			case s.world.ObserverSubscribe() <- req:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		log.WithField("frames_dropped", dropped.Load()).Info("observer disconnected")
	}
}

func newFrameLimiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.ViewRadius < 0 {
		sub.ViewRadius = 0
	}
	if sub.ViewRadius > 1024 {
		sub.ViewRadius = 1024
	}
	if sub.MaxPoints < 0 {
		sub.MaxPoints = 0
	}
	if sub.MaxPoints > 16384 {
		sub.MaxPoints = 16384
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
