package models

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/tts"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"
)

// State of a download.
type State int

const (
	StatePending State = iota
	StateDownloading
	StateExtracting
	StateComplete
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further progress follows.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// Progress is one update of a download.
type Progress struct {
	ModelID    string
	State      State
	Downloaded int64
	Total      int64
	Err        error
}

// Fraction returns the downloaded share in [0, 1], or 0 when the total is
// unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Downloaded) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// DefaultProgressInterval spaces Downloading updates.
const DefaultProgressInterval = 100 * time.Millisecond

// Downloader fetches models into a DiskStorage.
type Downloader struct {
	storage  *DiskStorage
	source   Source
	log      *log.Logger
	interval time.Duration

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithProgressInterval sets the minimum gap between Downloading updates.
func WithProgressInterval(d time.Duration) DownloaderOption {
	return func(dl *Downloader) { dl.interval = d }
}

// WithDownloaderLogger sets the logger.
func WithDownloaderLogger(l *log.Logger) DownloaderOption {
	return func(dl *Downloader) { dl.log = logging.OrDefault(l, "models") }
}

// NewDownloader creates a downloader installing into storage.
func NewDownloader(storage *DiskStorage, source Source, opts ...DownloaderOption) *Downloader {
	dl := &Downloader{
		storage:  storage,
		source:   source,
		log:      logging.OrDefault(nil, "models"),
		interval: DefaultProgressInterval,
		active:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(dl)
	}
	return dl
}

// Download starts fetching desc. The returned channel reports Pending
// first, ends with a terminal state and is then closed.
func (dl *Downloader) Download(ctx context.Context, desc tts.ModelDescriptor) (<-chan Progress, error) {
	if !validID(desc.ID) {
		return nil, tts.Errorf(tts.KindModelNotFound, "invalid model id %q", desc.ID)
	}
	if avail, err := dl.storage.AvailableSpace(); err == nil && desc.SizeBytes > avail {
		return nil, tts.NewError(tts.KindInsufficientStorage, "not enough free space for model", nil).
			WithContext("model", desc.ID).
			WithContext("need", desc.SizeBytes).
			WithContext("free", avail)
	}

	dl.mu.Lock()
	if _, busy := dl.active[desc.ID]; busy {
		dl.mu.Unlock()
		return nil, tts.NewError(tts.KindModelDownloadFailed, "download already in progress", nil).
			WithContext("model", desc.ID)
	}
	ctx, cancel := context.WithCancel(ctx)
	dl.active[desc.ID] = cancel
	dl.mu.Unlock()

	ch := make(chan Progress, 8)
	ch <- Progress{ModelID: desc.ID, State: StatePending, Total: desc.SizeBytes}
	go dl.run(ctx, desc, ch)
	return ch, nil
}

// Cancel aborts the download of id. It reports whether one was running.
func (dl *Downloader) Cancel(id string) bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	cancel, ok := dl.active[id]
	if ok {
		cancel()
	}
	return ok
}

func (dl *Downloader) run(ctx context.Context, desc tts.ModelDescriptor, ch chan<- Progress) {
	defer close(ch)
	defer func() {
		dl.mu.Lock()
		if cancel, ok := dl.active[desc.ID]; ok {
			cancel()
			delete(dl.active, desc.ID)
		}
		dl.mu.Unlock()
	}()

	start := time.Now()
	t := &tracker{
		id:      desc.ID,
		total:   desc.SizeBytes,
		ch:      ch,
		limiter: rate.NewLimiter(rate.Every(dl.interval), 1),
	}

	err := dl.fetch(ctx, desc, t)
	switch {
	case err == nil:
		dl.log.Info("Model installed", "model", desc.ID, "bytes", t.downloaded, "elapsed", time.Since(start).Round(time.Millisecond))
		t.send(StateComplete, nil)
	case ctx.Err() != nil:
		dl.log.Info("Download cancelled", "model", desc.ID)
		t.send(StateCancelled, nil)
	default:
		dl.log.Error("Download failed", "model", desc.ID, "error", err)
		t.send(StateFailed, tts.Wrap(tts.KindModelDownloadFailed, "download failed", err))
	}
}

func (dl *Downloader) fetch(ctx context.Context, desc tts.ModelDescriptor, t *tracker) error {
	tmp, err := os.MkdirTemp(dl.storage.Root(), ".download-"+desc.ID+"-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	t.send(StateDownloading, nil)
	dir := tmp
	if IsArchive(desc) {
		archive := filepath.Join(tmp, ".archive")
		if err := dl.save(ctx, desc, "", archive, t); err != nil {
			return err
		}
		t.send(StateExtracting, nil)
		content := filepath.Join(tmp, "content")
		if err := extract(ctx, archive, content); err != nil {
			return err
		}
		dir = modelRoot(content, desc.RequiredFiles)
	} else {
		if len(desc.RequiredFiles) == 0 {
			return errors.New("model lists no files to fetch")
		}
		dir = filepath.Join(tmp, "content")
		for _, f := range desc.RequiredFiles {
			if err := dl.save(ctx, desc, f, filepath.Join(dir, filepath.FromSlash(f)), t); err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return dl.storage.Install(desc.ID, dir)
}

func (dl *Downloader) save(ctx context.Context, desc tts.ModelDescriptor, file, dst string, t *tracker) error {
	r, size, err := dl.source.Open(ctx, desc, file)
	if err != nil {
		return err
	}
	defer r.Close()
	if file == "" && size > 0 {
		t.total = size
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, &countingReader{ctx: ctx, r: r, t: t})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// tracker emits progress for one download.
type tracker struct {
	id         string
	total      int64
	downloaded int64
	ch         chan<- Progress
	limiter    *rate.Limiter
}

func (t *tracker) add(n int) {
	t.downloaded += int64(n)
	if !t.limiter.Allow() {
		return
	}
	select {
	case t.ch <- t.progress(StateDownloading, nil):
	default:
	}
}

func (t *tracker) send(s State, err error) {
	t.ch <- t.progress(s, err)
}

func (t *tracker) progress(s State, err error) Progress {
	return Progress{ModelID: t.id, State: s, Downloaded: t.downloaded, Total: t.total, Err: err}
}

type countingReader struct {
	ctx context.Context
	r   io.Reader
	t   *tracker
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.t.add(n)
	}
	return n, err
}

// extract unpacks a gzip-compressed tarball into dst.
func extract(ctx context.Context, archive, dst string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("invalid archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid archive: %w", err)
		}

		target, ok := within(dst, hdr.Name)
		if !ok {
			return fmt.Errorf("archive entry %q escapes model directory", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return err
			}
		default:
			// Links and devices are never part of a model.
		}
	}
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// within joins name onto root, refusing names that leave root.
func within(root, name string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(root, clean), true
}

// modelRoot finds the directory holding the model inside an extracted
// archive. Archives often wrap everything in one top-level directory.
func modelRoot(dir string, required []string) string {
	if len(required) > 0 && hasFiles(dir, required) {
		return dir
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return dir
	}
	return filepath.Join(dir, entries[0].Name())
}
