package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/persistence/indexdb"
	"sonarchart/internal/sim/tuning"
	"sonarchart/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	RecordRun(runID, worldID string, tune tuning.Tuning) error
}

func openRuntimeIndex(runDir, worldID string, disableDB bool, logger logrus.FieldLogger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SONAR_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(runDir, "index", "run.sqlite"), logger)
	case "ingest":
		endpoint := strings.TrimSpace(os.Getenv("SONAR_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("SONAR_INDEX_BACKEND=ingest but SONAR_INGEST_URL is empty")
		}
		return indexdb.OpenIngest(indexdb.IngestConfig{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("SONAR_INGEST_TOKEN")),
			WorldID:       worldID,
			BatchSize:     envInt("SONAR_INGEST_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("SONAR_INGEST_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported SONAR_INDEX_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
