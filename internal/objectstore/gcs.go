package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/phrazzld/annotator-api/internal/domain"
	"google.golang.org/api/iterator"
)

// GCSStore reads segments from a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewGCSStore creates a client with application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With(slog.String("component", "gcs_store")),
	}, nil
}

// Fetch downloads one object.
func (s *GCSStore) Fetch(ctx context.Context, videoID, file string) ([]byte, error) {
	name, err := ObjectPath(s.prefix, videoID, file)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", name, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", name, err)
	}

	s.logger.DebugContext(ctx, "fetched object",
		slog.String("object", name),
		slog.Int("bytes", len(data)))
	return data, nil
}

// List enumerates every <video>/<segment>.wav object under the prefix.
func (s *GCSStore) List(ctx context.Context) ([]domain.SegmentRef, error) {
	query := &storage.Query{}
	base := ""
	if s.prefix != "" {
		base = s.prefix + "/"
		query.Prefix = base
	}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("failed to build object query: %w", err)
	}

	var refs []domain.SegmentRef
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if ref, ok := parseObjectName(strings.TrimPrefix(attrs.Name, base)); ok {
			refs = append(refs, ref)
		}
	}

	sortRefs(refs)
	return refs, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
