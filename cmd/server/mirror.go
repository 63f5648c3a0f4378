package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/persistence/objstore"
)

// mirrorRuntime uploads closed tick-log files when SONAR_MIRROR is set.
type mirrorRuntime struct {
	enabled bool
	mirror  *objstore.Mirror
}

func buildMirrorRuntime(dataDir string, logger logrus.FieldLogger) (*mirrorRuntime, error) {
	if !envBool("SONAR_MIRROR", false) {
		return &mirrorRuntime{}, nil
	}

	cfg := objstore.Config{
		Endpoint:        os.Getenv("SONAR_S3_ENDPOINT"),
		Bucket:          os.Getenv("SONAR_S3_BUCKET"),
		Region:          strings.TrimSpace(os.Getenv("SONAR_S3_REGION")),
		AccessKeyID:     os.Getenv("SONAR_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("SONAR_S3_SECRET_ACCESS_KEY"),
	}
	client, err := objstore.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("SONAR_MIRROR=true: %w", err)
	}
	m := objstore.NewMirror(client, objstore.MirrorConfig{
		BaseDir: dataDir,
		Prefix:  os.Getenv("SONAR_S3_PREFIX"),
		Workers: envInt("SONAR_MIRROR_WORKERS", 2),
	}, logger)
	return &mirrorRuntime{enabled: true, mirror: m}, nil
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled {
		return
	}
	r.mirror.Enqueue(localPath)
}

func (r *mirrorRuntime) Close() {
	if r == nil || !r.enabled {
		return
	}
	r.mirror.Close()
}

func (r *mirrorRuntime) Stats() (objstore.Stats, bool) {
	if r == nil || !r.enabled {
		return objstore.Stats{}, false
	}
	return r.mirror.Stats(), true
}
