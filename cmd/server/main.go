package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sonarchart/internal/logger"
	persistlog "sonarchart/internal/persistence/log"
	"sonarchart/internal/sim/tuning"
	"sonarchart/internal/sim/world"
	"sonarchart/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "sonar_1", "world id")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (defaults apply when missing)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		runID      = flag.String("run", "", "run id (default: random uuid)")
		disableDB  = flag.Bool("disable_db", false, "disable the run index (tick log files are still written)")
	)
	flag.Parse()

	log := logger.Init().WithField("component", "server")

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Fatal("load tuning")
		}
		log.WithField("path", *tuningPath).Warn("tuning not found; using defaults")
		tune = tuning.Defaults()
	}

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = uuid.NewString()
	}
	runDir := filepath.Join(*dataDir, "runs", id)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		log.WithError(err).Fatal("create run dir")
	}
	log = log.WithFields(logrus.Fields{"world": *worldID, "run": id})

	w, err := world.New(world.ConfigFromTuning(*worldID, id, tune), logger.Log)
	if err != nil {
		log.WithError(err).Fatal("world")
	}

	idx, err := openRuntimeIndex(runDir, *worldID, *disableDB, logger.Log)
	if err != nil {
		log.WithError(err).Fatal("open index backend")
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.RecordRun(id, *worldID, tune); err != nil {
			log.WithError(err).Warn("index backend: record run")
		}
	}

	mirror, err := buildMirrorRuntime(*dataDir, logger.Log)
	if err != nil {
		log.WithError(err).Fatal("init object mirror")
	}
	defer mirror.Close()

	logOpts := persistlog.LoggerOptions{}
	if mirror.enabled {
		logOpts.OnClose = mirror.Enqueue
	}
	tickLog := persistlog.NewTickLoggerWithOptions(runDir, logOpts)
	// Closed before the mirror so the last hour is uploaded.
	defer tickLog.Close()

	var ti world.TickLogger
	if idx != nil {
		ti = idx
	}
	w.SetTickLogger(multiTickLogger{a: tickLog, b: ti})

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("world stopped")
		}
	}()

	obsSrv := observer.NewServer(w, logger.Log, observer.Options{
		FramesPerSec: tune.Stream.FramesPerSec,
		Burst:        tune.Stream.Burst,
		AllowRemote:  envBool("SONAR_OBSERVER_ALLOW_REMOTE", false),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, w.Status())
		writeMirrorMetrics(rw, mirror)
	})
	mux.HandleFunc("/v1/status", obsSrv.StatusHandler())
	mux.HandleFunc("/v1/ping", obsSrv.PingHandler())
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	if envBool("SONAR_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Debug("pprof endpoints disabled (SONAR_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithField("addr", *addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("ListenAndServe")
		cancel()
	}
	<-worldDone
	log.WithField("tick", w.CurrentTick()).Info("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteTick(entry)
	}
	if m.b != nil {
		errB = m.b.WriteTick(entry)
	}
	return errors.Join(errA, errB)
}
