package client

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/api"
	"github.com/phrazzld/annotator-api/internal/domain"
)

// AnalysisState is the server-owned part of an item. Every poll replaces it.
type AnalysisState struct {
	Status domain.AnalysisStatus
	Result map[string]any
	Error  string
}

// Settled reports whether the analysis reached done or error.
func (a AnalysisState) Settled() bool {
	return a.Status.IsTerminal()
}

// AnswerState is the client-owned part of an item.
type AnswerState struct {
	Answers           map[string]any
	TranscriptCorrect *bool
}

type answerRecord struct {
	AnswerState
	// version counts local edits; synced is the last version the server
	// acknowledged. Local edits win while version > synced.
	version int
	synced  int
	// ackedAt is the session generation at which the last save was
	// acknowledged. Snapshots read before it are older than the save.
	ackedAt uint64
}

func (r *answerRecord) dirty() bool {
	return r.version > r.synced
}

// Session is the client's view of one batch.
type Session struct {
	batchID uuid.UUID

	mu        sync.Mutex
	order     []domain.SegmentRef
	analysis  map[domain.SegmentRef]AnalysisState
	answers   map[domain.SegmentRef]*answerRecord
	status    domain.BatchStatus
	lastError error
	// generation increases with every acknowledged save.
	generation uint64
}

// NewSession creates an empty session for a batch.
func NewSession(batchID uuid.UUID) *Session {
	return &Session{
		batchID:  batchID,
		analysis: make(map[domain.SegmentRef]AnalysisState),
		answers:  make(map[domain.SegmentRef]*answerRecord),
		status:   domain.BatchStatusInProgress,
	}
}

// BatchID returns the session's batch.
func (s *Session) BatchID() uuid.UUID {
	return s.batchID
}

// Generation returns the current save generation. Take it before issuing
// the request whose response is passed to ApplyAt.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Apply merges a snapshot read after every save acknowledged so far.
func (s *Session) Apply(detail *api.BatchDetailResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(detail, s.generation)
}

// ApplyAt merges a server snapshot whose request started at generation gen.
// Analysis fields are taken from the server. Answers are taken from the
// server only for items without unsaved local edits and without a save
// acknowledged after gen.
func (s *Session) ApplyAt(detail *api.BatchDetailResponse, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(detail, gen)
}

func (s *Session) apply(detail *api.BatchDetailResponse, gen uint64) {

	s.status = detail.Status
	s.lastError = nil
	if len(s.order) == 0 {
		for _, a := range detail.Annotations {
			s.order = append(s.order, domain.SegmentRef{VideoID: a.VideoID, SegmentID: a.SegmentID})
		}
	}

	for _, a := range detail.Annotations {
		ref := domain.SegmentRef{VideoID: a.VideoID, SegmentID: a.SegmentID}
		s.mergeAnalysis(ref, a)
		s.mergeAnswers(ref, a, gen)
	}
}

func (s *Session) mergeAnalysis(ref domain.SegmentRef, a api.AnnotationResponse) {
	state := AnalysisState{Status: a.GeminiStatus, Result: maps.Clone(a.GeminiAnswers)}
	if a.GeminiError != nil {
		state.Error = *a.GeminiError
	}
	s.analysis[ref] = state
}

func (s *Session) mergeAnswers(ref domain.SegmentRef, a api.AnnotationResponse, gen uint64) {
	rec, ok := s.answers[ref]
	if !ok {
		rec = &answerRecord{}
		s.answers[ref] = rec
	}
	if rec.dirty() || rec.ackedAt > gen {
		return
	}
	rec.Answers = maps.Clone(a.UserAnswers)
	rec.TranscriptCorrect = cloneBool(a.UserTranscriptCorrect)
}

// Refs returns the batch's segments in server order.
func (s *Session) Refs() []domain.SegmentRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SegmentRef(nil), s.order...)
}

// Analysis returns the analysis state of an item.
func (s *Session) Analysis(ref domain.SegmentRef) (AnalysisState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.analysis[ref]
	return state, ok
}

// Answers returns a copy of the item's answers, including unsaved edits.
func (s *Session) Answers(ref domain.SegmentRef) AnswerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.answers[ref]
	if !ok {
		return AnswerState{}
	}
	return AnswerState{Answers: maps.Clone(rec.Answers), TranscriptCorrect: cloneBool(rec.TranscriptCorrect)}
}

// HasUnsaved reports whether the item has edits the server has not yet
// acknowledged.
func (s *Session) HasUnsaved(ref domain.SegmentRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.answers[ref]
	return ok && rec.dirty()
}

// SetAnswer records a local answer for one field.
func (s *Session) SetAnswer(ref domain.SegmentRef, field string, value any) {
	s.edit(ref, func(rec *answerRecord) {
		if rec.Answers == nil {
			rec.Answers = make(map[string]any)
		}
		rec.Answers[field] = value
	})
}

// SetTranscriptCorrect records the local transcript judgment.
func (s *Session) SetTranscriptCorrect(ref domain.SegmentRef, correct bool) {
	s.edit(ref, func(rec *answerRecord) {
		rec.TranscriptCorrect = &correct
	})
}

func (s *Session) edit(ref domain.SegmentRef, fn func(rec *answerRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.answers[ref]
	if !ok {
		rec = &answerRecord{}
		s.answers[ref] = rec
	}
	fn(rec)
	rec.version++
}

// Save sends the item's answers to the server. Edits made while the request
// is in flight stay unsaved.
func (s *Session) Save(ctx context.Context, c *Client, ref domain.SegmentRef) error {
	s.mu.Lock()
	rec, ok := s.answers[ref]
	if !ok || !rec.dirty() {
		s.mu.Unlock()
		return nil
	}
	answers := maps.Clone(rec.Answers)
	transcript := cloneBool(rec.TranscriptCorrect)
	version := rec.version
	s.mu.Unlock()

	status, err := c.RecordAnswer(ctx, s.batchID, ref, answers, transcript)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if version > rec.synced {
		rec.synced = version
	}
	s.generation++
	rec.ackedAt = s.generation
	if status != "" {
		s.status = status
	}
	return nil
}

// MarkRetrying shows the item as pending until the next poll.
func (s *Session) MarkRetrying(ref domain.SegmentRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis[ref] = AnalysisState{Status: domain.AnalysisStatusPending}
}

// Status returns the last known batch status.
func (s *Session) Status() domain.BatchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Settled reports whether polling can stop: the batch is completed or every
// item's analysis is done or error.
func (s *Session) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == domain.BatchStatusCompleted {
		return true
	}
	if len(s.analysis) == 0 {
		return false
	}
	for _, state := range s.analysis {
		if !state.Settled() {
			return false
		}
	}
	return true
}

// LastError returns the error of the most recent failed poll, cleared by
// the next successful one.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
