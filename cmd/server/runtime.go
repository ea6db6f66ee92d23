package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"

	"parkrivals.io/internal/config"
	"parkrivals.io/internal/metrics"
	"parkrivals.io/internal/persistence/s3mirror"
	"parkrivals.io/internal/store"
	"parkrivals.io/internal/store/memory"
	"parkrivals.io/internal/store/sqlstore"
)

func openStore(cfg config.Storage) (store.Store, func(), error) {
	if cfg.Driver == "memory" {
		return memory.New(), func() {}, nil
	}
	s, err := sqlstore.Open(cfg.Driver, cfg.DSN, cfg.Scope)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

// buildMirror returns nil when mirroring is disabled; a nil mirror ignores
// every call.
func buildMirror(ctx context.Context, cfg config.Mirror, dataDir string, logger *log.Logger) (*s3mirror.Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := s3mirror.NewClient(ctx, s3mirror.ClientConfigFromEnv(cfg.Endpoint, cfg.Region, cfg.Bucket))
	if err != nil {
		return nil, err
	}
	logger.Printf("mirror enabled bucket=%s prefix=%s workers=%d", cfg.Bucket, cfg.Prefix, cfg.Workers)
	return s3mirror.New(client, s3mirror.Options{
		DataDir:       dataDir,
		Prefix:        cfg.Prefix,
		Workers:       cfg.Workers,
		QueueCapacity: envInt("PR_MIRROR_QUEUE", 256),
		Logger:        logger,
	}), nil
}

func registerMirrorMetrics(reg *metrics.Registry, m *s3mirror.Mirror) {
	if m == nil {
		return
	}
	reg.GaugeFunc("parkrivals_mirror_queue_depth", "Files waiting for upload.", func() float64 {
		return float64(m.Stats().QueueDepth)
	})
	reg.CounterFunc("parkrivals_mirror_dropped_total", "Files dropped because the queue stayed full.", func() float64 {
		return float64(m.Stats().DroppedTotal)
	})
	reg.CounterFunc("parkrivals_mirror_upload_success_total", "Successful uploads.", func() float64 {
		return float64(m.Stats().UploadSuccessTotal)
	})
	reg.CounterFunc("parkrivals_mirror_upload_fail_total", "Uploads that failed after retries.", func() float64 {
		return float64(m.Stats().UploadFailTotal)
	})
	reg.GaugeFunc("parkrivals_mirror_last_success_unix", "Unix time of the last successful upload.", func() float64 {
		return float64(m.Stats().LastSuccessUnix)
	})
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
	if err != nil || n <= 0 {
		return def
	}
	return n
}
