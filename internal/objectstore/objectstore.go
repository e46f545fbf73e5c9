// Package objectstore reads segment audio from the object store. Objects
// are laid out as <prefix>/<video_id>/<segment_id>.wav. The GCS bucket is
// the production backend; a local directory with the same layout serves
// development and tests.
package objectstore

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/phrazzld/annotator-api/internal/domain"
)

// SegmentExt is the file extension of every segment object.
const SegmentExt = ".wav"

var (
	// ErrNotFound means the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidPath means a path component was empty or tried to escape
	// its directory.
	ErrInvalidPath = errors.New("invalid object path")

	// ErrInvalidAudio means fetched bytes are not a usable WAV file.
	ErrInvalidAudio = errors.New("invalid WAV audio")
)

// Fetcher reads a whole object into memory.
type Fetcher interface {
	Fetch(ctx context.Context, videoID, file string) ([]byte, error)
}

// Lister enumerates the segments available in the store.
type Lister interface {
	List(ctx context.Context) ([]domain.SegmentRef, error)
}

// Store is a backend that can both fetch and list.
type Store interface {
	Fetcher
	Lister
}

// SegmentFile returns the object file name of a segment.
func SegmentFile(segmentID string) string {
	return segmentID + SegmentExt
}

// ValidatePathPart rejects empty components and anything that could walk
// out of the video directory.
func ValidatePathPart(part string) error {
	if part == "" || strings.Contains(part, "..") || strings.ContainsAny(part, `/\`) {
		return ErrInvalidPath
	}
	return nil
}

// ObjectPath joins prefix, video and file into an object name after
// validating the components.
func ObjectPath(prefix, videoID, file string) (string, error) {
	if err := ValidatePathPart(videoID); err != nil {
		return "", err
	}
	if err := ValidatePathPart(file); err != nil {
		return "", err
	}
	if prefix == "" {
		return videoID + "/" + file, nil
	}
	return path.Join(prefix, videoID, file), nil
}

// parseObjectName turns "<video>/<segment>.wav" (relative to the prefix)
// into a segment reference.
func parseObjectName(rel string) (domain.SegmentRef, bool) {
	videoID, file, ok := strings.Cut(rel, "/")
	if !ok || videoID == "" || strings.Contains(file, "/") {
		return domain.SegmentRef{}, false
	}
	if !strings.HasSuffix(file, SegmentExt) {
		return domain.SegmentRef{}, false
	}
	segmentID := strings.TrimSuffix(file, SegmentExt)
	if segmentID == "" {
		return domain.SegmentRef{}, false
	}
	return domain.SegmentRef{VideoID: videoID, SegmentID: segmentID}, true
}

func sortRefs(refs []domain.SegmentRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].VideoID != refs[j].VideoID {
			return refs[i].VideoID < refs[j].VideoID
		}
		return refs[i].SegmentID < refs[j].SegmentID
	})
}
