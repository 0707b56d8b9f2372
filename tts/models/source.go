package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/dgnsrekt/voxkit/internal/objectstore"
	"github.com/dgnsrekt/voxkit/tts"
)

// Source fetches model content. An empty file name asks for the model's
// archive; otherwise the named file of the model is fetched.
type Source interface {
	Open(ctx context.Context, desc tts.ModelDescriptor, file string) (io.ReadCloser, int64, error)
}

// IsArchive reports whether desc downloads as one compressed tarball.
func IsArchive(desc tts.ModelDescriptor) bool {
	u := strings.ToLower(desc.DownloadURL)
	return strings.HasSuffix(u, ".tar.gz") || strings.HasSuffix(u, ".tgz")
}

// HTTPSource downloads from each descriptor's DownloadURL. For non-archive
// models the URL is a base to which file names are appended.
type HTTPSource struct {
	Client    *http.Client
	UserAgent string
}

// Open implements Source.
func (s *HTTPSource) Open(ctx context.Context, desc tts.ModelDescriptor, file string) (io.ReadCloser, int64, error) {
	url := desc.DownloadURL
	if file != "" {
		url = strings.TrimSuffix(url, "/") + "/" + file
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, tts.NewError(tts.KindModelDownloadFailed, "invalid download url", err).
			WithContext("url", url)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, tts.NewError(tts.KindNetworkError, "request failed", err).
			WithContext("url", url)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, tts.Errorf(tts.KindNetworkError, "unexpected status %s", resp.Status).
			WithContext("url", url)
	}
	return resp.Body, resp.ContentLength, nil
}

// ObjectStoreSource reads models from a NATS object store mirror. Archives
// are stored as "<id>.tar.gz" and single files as "<id>/<file>".
type ObjectStoreSource struct {
	Store *objectstore.Store
}

// Open implements Source.
func (s *ObjectStoreSource) Open(ctx context.Context, desc tts.ModelDescriptor, file string) (io.ReadCloser, int64, error) {
	key := ObjectKey(desc, file)
	r, size, err := s.Store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, 0, tts.NewError(tts.KindModelDownloadFailed, "not in mirror", err).
				WithContext("key", key)
		}
		return nil, 0, tts.NewError(tts.KindNetworkError, fmt.Sprintf("mirror %s unavailable", s.Store.Bucket()), err)
	}
	return r, size, nil
}

// ObjectKey names the mirror object holding file of desc.
func ObjectKey(desc tts.ModelDescriptor, file string) string {
	if file == "" {
		return desc.ID + ".tar.gz"
	}
	return path.Join(desc.ID, file)
}
