package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/phrazzld/annotator-api/internal/domain"
)

// LocalStore reads segments from <root>/<video_id>/<segment_id>.wav.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("segment path %s is not a directory", dir)
	}
	return &LocalStore{root: dir}, nil
}

// Fetch reads one segment file.
func (s *LocalStore) Fetch(ctx context.Context, videoID, file string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := ObjectPath("", videoID, file)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return data, nil
}

// List walks the video directories one level deep.
func (s *LocalStore) List(ctx context.Context) ([]domain.SegmentRef, error) {
	videos, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment directory: %w", err)
	}

	var refs []domain.SegmentRef
	for _, v := range videos {
		if !v.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := os.ReadDir(filepath.Join(s.root, v.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read video directory %s: %w", v.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if ref, ok := parseObjectName(v.Name() + "/" + f.Name()); ok {
				refs = append(refs, ref)
			}
		}
	}

	sortRefs(refs)
	return refs, nil
}
