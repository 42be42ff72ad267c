// Package gcs stores artifacts as objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/portal"
)

const contentType = "application/pdf"

// Config captures the parameters required to write into GCS.
type Config struct {
	Bucket string `mapstructure:"gcs_bucket" yaml:"gcs_bucket"`
	// Prefix is prepended to every object name, e.g. "scraper/".
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// Store writes artifacts to a configured bucket with create-only preconditions.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// ObjectName maps a path relative to the store root onto an object name.
func (s *Store) ObjectName(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

func (s *Store) uri(object string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, object)
}

// Save uploads res.PDF unless the object already exists.
func (s *Store) Save(ctx context.Context, res portal.Result) (artifact.Saved, error) {
	rel, err := artifact.RelativePath(res)
	if err != nil {
		return artifact.Saved{}, err
	}
	object := s.ObjectName(rel)
	uri := s.uri(object)

	w := s.client.Bucket(s.bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		"usn":          res.USN,
		"student_name": res.Name,
		"sha256":       artifact.Checksum(res.PDF),
	}
	if _, err := w.Write(res.PDF); err != nil {
		closeErr := w.Close()
		if alreadyExists(closeErr) {
			return artifact.Saved{Path: uri}, nil
		}
		return artifact.Saved{}, fmt.Errorf("write object %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			s.logger.Info("artifact already exists, skipping", zap.String("path", uri))
			return artifact.Saved{Path: uri}, nil
		}
		return artifact.Saved{}, fmt.Errorf("close writer for %s: %w", uri, err)
	}
	s.logger.Info("artifact saved", zap.String("path", uri), zap.String("usn", res.USN))
	return artifact.Saved{Path: uri, Created: true}, nil
}

// List returns every parseable artifact under the configured prefix.
func (s *Store) List(ctx context.Context) ([]artifact.Artifact, error) {
	query := &storage.Query{}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	out := []artifact.Artifact{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects in %s: %w", s.bucket, err)
		}
		rel := strings.TrimPrefix(attrs.Name, query.Prefix)
		a, ok := artifact.Describe(rel, attrs.Size, attrs.Updated)
		if !ok {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
