package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/audio"
	"github.com/dgnsrekt/voxkit/internal/cache"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/internal/objectstore"
	"github.com/dgnsrekt/voxkit/tts"
	"github.com/dgnsrekt/voxkit/tts/coordinator"
	"github.com/dgnsrekt/voxkit/tts/models"
	"github.com/dgnsrekt/voxkit/tts/neural"
	"github.com/dgnsrekt/voxkit/tts/neural/onnx"
	"github.com/dgnsrekt/voxkit/tts/platform"
	gap "github.com/muesli/go-app-paths"
)

const natsConnectTimeout = 10 * time.Second

// sdk bundles a running coordinator with the model catalog it uses.
type sdk struct {
	coord    *coordinator.Coordinator
	registry *models.Registry
	storage  *models.DiskStorage
	metrics  *logging.Recorder
	closers  []func() error
}

// modelsDir returns where downloaded models live.
func modelsDir() (string, error) {
	if cfg.Neural.ModelsDir != "" {
		return cfg.Neural.ModelsDir, nil
	}
	p, err := gap.NewScope(gap.User, appName).DataPath("models")
	if err != nil {
		return "", fmt.Errorf("unable to find data directory: %w", err)
	}
	return p, nil
}

// audioCacheDir returns where synthesized audio is cached on disk.
func audioCacheDir() (string, error) {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	dir, err := gap.NewScope(gap.User, appName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, "audio"), nil
}

// openCatalog loads the model registry and the on-disk model store.
func openCatalog() (*models.Registry, *models.DiskStorage, error) {
	reg, err := models.Default()
	if err != nil {
		return nil, nil, err
	}
	root, err := modelsDir()
	if err != nil {
		return nil, nil, err
	}
	storage, err := models.NewDiskStorage(root,
		models.WithRegistry(reg),
		models.WithBundled(cfg.Neural.BundledDirs...),
		models.WithStorageLogger(log.Default()),
	)
	if err != nil {
		return nil, nil, err
	}
	return reg, storage, nil
}

// openSource returns where model downloads come from, and a func to
// release it.
func openSource() (models.Source, func() error, error) {
	if cfg.Download.Source == "nats" {
		store, nc, err := objectstore.Connect(cfg.Download.NATSURL, cfg.Download.Bucket, natsConnectTimeout)
		if err != nil {
			return nil, nil, tts.Wrap(tts.KindNetworkError, "unable to reach model mirror", err)
		}
		log.Debug("Using model mirror", "url", cfg.Download.NATSURL, "bucket", store.Bucket())
		return &models.ObjectStoreSource{Store: store}, nc.Drain, nil
	}
	src := &models.HTTPSource{
		Client:    &http.Client{Timeout: cfg.Download.Timeout},
		UserAgent: appName + "/" + Version,
	}
	return src, func() error { return nil }, nil
}

// newSDK builds and initializes a coordinator for the configured platform
// driver. With withNeural set, a neural backend is attached so that
// SwitchToNeural works.
func newSDK(ctx context.Context, withNeural bool, handler tts.EventHandler) (*sdk, error) {
	logger := log.Default()
	s := &sdk{metrics: logging.NewRecorder(logger, cfg.Log.Debug)}

	reg, storage, err := openCatalog()
	if err != nil {
		return nil, err
	}
	s.registry, s.storage = reg, storage
	s.closers = append(s.closers, storage.Close)

	driver, err := platform.New(cfg.Engine, logger)
	if err != nil {
		s.close()
		return nil, err
	}

	opts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithQueueCapacity(cfg.Queue.Capacity),
		coordinator.WithPollInterval(cfg.Queue.PollInterval),
		coordinator.WithSpeech(cfg.Speech),
		coordinator.WithModelRegistry(reg),
		coordinator.WithModelStorage(storage),
		coordinator.WithEventHandler(handler),
	}

	if withNeural {
		nb, err := s.neuralBackend(logger)
		if err != nil {
			s.close()
			return nil, err
		}
		opts = append(opts, coordinator.WithNeuralBackend(nb))
	}

	s.coord = coordinator.New(platform.NewBackend(driver, logger), opts...)
	if err := s.coord.Initialize(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *sdk) neuralBackend(logger *log.Logger) (*neural.Backend, error) {
	rt, err := onnx.New(onnx.Options{
		LibraryPath: cfg.Neural.RuntimeLibrary,
		Threads:     cfg.Neural.Threads,
	})
	if err != nil {
		return nil, err
	}
	engine := neural.NewEngine(rt,
		neural.WithEngineLogger(logger),
		neural.WithMetrics(s.metrics),
	)
	s.closers = append(s.closers, engine.Close)

	pc := audio.DefaultPlayerConfig()
	pc.SampleRate = cfg.Neural.SampleRate
	player, err := audio.NewPlayer(pc)
	if err != nil {
		return nil, tts.Wrap(tts.KindEngineError, "unable to open audio output", err)
	}
	s.closers = append(s.closers, player.Close)

	opts := []neural.BackendOption{neural.WithLogger(logger)}
	if cfg.Cache.Enabled {
		dir, err := audioCacheDir()
		if err != nil {
			return nil, err
		}
		c, err := cache.New(cache.Config{
			MemoryBytes:      int64(cfg.Cache.MemoryMB) << 20,
			DiskBytes:        int64(cfg.Cache.DiskMB) << 20,
			Dir:              dir,
			CompressionLevel: cfg.Cache.CompressionLevel,
		}, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, c.Close)
		opts = append(opts, neural.WithCache(c))
	}
	return neural.NewBackend(engine, player, opts...), nil
}

// useNeural switches to model, falling back to the configured default
// model, and selects style when given.
func (s *sdk) useNeural(ctx context.Context, model, style string) error {
	if model == "" {
		model = cfg.Neural.Model
	}
	if model == "" {
		return tts.NewError(tts.KindModelNotFound, "no neural model given", nil)
	}
	if err := s.coord.SwitchToNeural(ctx, model); err != nil {
		return err
	}
	if style == "" {
		style = cfg.Neural.Style
	}
	if style != "" {
		return s.coord.SetVoiceStyle(style)
	}
	return nil
}

// close shuts the coordinator down and releases everything in reverse
// order of creation.
func (s *sdk) close() {
	if s.coord != nil {
		if err := s.coord.Shutdown(); err != nil {
			log.Warn("Shutdown failed", "error", err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Debug("Close failed", "error", err)
		}
	}
	s.closers = nil
	if cfg.Log.Debug {
		log.Debug("Synthesis metrics", "summary", s.metrics.Summary().String())
	}
}
