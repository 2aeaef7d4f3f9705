// Package storage resolves document references (local paths, file://,
// http(s):// and s3:// URLs) and writes outputs to a directory or bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// maxDownload caps remote inputs.
const maxDownload = 512 << 20

// StatusError is a non-200 answer for an http(s) input.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("fetch %s: http %d", e.URL, e.Code) }

// Store fetches inputs and saves outputs.
type Store struct {
	s3opts S3Options
	http   *http.Client

	mu sync.Mutex
	s3 *S3Client
}

// New returns a Store. The S3 client is created on first use.
func New(opts S3Options) *Store {
	return &Store{s3opts: opts, http: &http.Client{Timeout: 2 * time.Minute}}
}

// NewWithClient uses an existing S3 client.
func NewWithClient(c *S3Client) *Store {
	return &Store{s3: c, http: &http.Client{Timeout: 2 * time.Minute}}
}

// S3 returns the lazily created S3 client.
func (s *Store) S3(ctx context.Context) (*S3Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3 != nil {
		return s.s3, nil
	}
	c, err := NewS3Client(ctx, s.s3opts)
	if err != nil {
		return nil, err
	}
	s.s3 = c
	return c, nil
}

// IsRemote reports whether ref is an s3 or http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Name returns the base file name of ref.
func Name(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 && IsRemote(ref) {
		ref = ref[:i]
	}
	ref = strings.TrimPrefix(ref, "file://")
	if IsRemote(ref) {
		return path.Base(ref)
	}
	return filepath.Base(ref)
}

// Fetch returns the bytes behind ref.
func (s *Store) Fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, err := ParseS3URL(ref)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, fmt.Errorf("invalid s3 url: %s", ref)
		}
		c, err := s.S3(ctx)
		if err != nil {
			return nil, err
		}
		return c.Download(ctx, bucket, key)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return s.fetchHTTP(ctx, ref)
	default:
		return os.ReadFile(strings.TrimPrefix(ref, "file://"))
	}
}

func (s *Store) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("download exceeds %d bytes", maxDownload)
	}
	log.Debug().Str("url", url).Int("size", len(data)).Msg("downloaded input")
	return data, nil
}

// Save writes data as name under dir, which may be a local directory
// (created if missing) or an s3://bucket/prefix. It returns the output reference.
func (s *Store) Save(ctx context.Context, dir, name string, data []byte, contentType string) (string, error) {
	if strings.HasPrefix(dir, "s3://") {
		bucket, prefix, err := ParseS3URL(dir)
		if err != nil {
			return "", err
		}
		key := strings.TrimPrefix(path.Join(prefix, name), "/")
		c, err := s.S3(ctx)
		if err != nil {
			return "", err
		}
		if err := c.Upload(ctx, bucket, key, data, contentType, nil); err != nil {
			return "", err
		}
		return "s3://" + bucket + "/" + key, nil
	}
	dir = strings.TrimPrefix(dir, "file://")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	out := filepath.Join(dir, name)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return out, nil
}
