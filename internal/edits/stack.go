package edits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"archsync/internal/document"
	"archsync/internal/session"

	"github.com/google/uuid"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// FlushResult describes one flushed batch. Touched holds, in first-touch
// order, the snapshots the applied edits were built from.
type FlushResult struct {
	Batch     string
	StartedAt time.Time
	Applied   int
	Touched   []*document.Document
	Err       error
}

// Refresher is told about every flush once its saves are done, so it can
// push a fresh summary to the UI.
type Refresher interface {
	Refresh(ctx context.Context, result FlushResult)
}

// Stack queues edits for one apply action of the UI.
type Stack struct {
	host      document.Host
	intercept *session.Intercept
	refresher Refresher

	mu    sync.Mutex
	edits []Edit
	seen  map[key]struct{}
}

func NewStack(host document.Host, intercept *session.Intercept, refresher Refresher) *Stack {
	return &Stack{
		host:      host,
		intercept: intercept,
		refresher: refresher,
		seen:      make(map[key]struct{}),
	}
}

// Push queues e. An edit making the same change to the same document as a
// queued one is dropped, and Push reports false.
func (s *Stack) Push(e Edit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := e.key()
	if _, ok := s.seen[k]; ok {
		editsDeduplicated.Inc()
		log.Debug("dropping duplicate edit", "uri", e.Document.URI, "offset", e.Offset)
		return false
	}
	s.seen[k] = struct{}{}
	s.edits = append(s.edits, e)
	editsPushed.WithLabelValues(e.Kind.String()).Inc()
	return true
}

// PushAll pushes every edit and returns how many were queued.
func (s *Stack) PushAll(edits []Edit) int {
	n := 0
	for _, e := range edits {
		if s.Push(e) {
			n++
		}
	}
	return n
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits)
}

// queued returns a copy of the queued edits in push order.
func (s *Stack) queued() []Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Edit(nil), s.edits...)
}

func (s *Stack) take() []Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	edits := s.edits
	s.edits = nil
	s.seen = make(map[key]struct{})
	return edits
}

// Ordered sorts edits by descending offset. Edits at the same offset are
// applied in reverse push order, so their texts end up in push order.
func Ordered(edits []Edit) []Edit {
	sorted := make([]Edit, len(edits))
	for i, e := range edits {
		sorted[len(edits)-1-i] = e
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset > sorted[j].Offset
	})
	return sorted
}

// Flush applies the queued edits last-offset-first, saves every touched
// document with the batch intercept held, clears the stack and hands the
// result to the refresher. The stack is empty afterwards even on error.
func (s *Stack) Flush(ctx context.Context) FlushResult {
	result := FlushResult{Batch: uuid.NewString(), StartedAt: time.Now()}
	edits := s.take()
	if len(edits) == 0 {
		return result
	}

	var errs []error
	var order []protocol.DocumentUri
	touched := map[protocol.DocumentUri]*document.Document{}
	for _, e := range Ordered(edits) {
		uri := e.Document.URI
		if err := s.host.Apply(ctx, uri, []protocol.TextEdit{e.TextEdit}); err != nil {
			flushFailures.WithLabelValues("apply").Inc()
			errs = append(errs, fmt.Errorf("failed to apply %s edit to %s: %w", e.Kind, uri, err))
			continue
		}
		result.Applied++
		if _, ok := touched[uri]; !ok {
			touched[uri] = e.Document
			order = append(order, uri)
		}
	}
	editsFlushed.Add(float64(result.Applied))

	errs = append(errs, s.save(ctx, order)...)
	for _, uri := range order {
		result.Touched = append(result.Touched, touched[uri])
	}
	result.Err = errors.Join(errs...)

	log.Info("flushed edits", "batch", result.Batch, "applied", result.Applied, "documents", len(order))
	if result.Err != nil {
		log.Error("flush finished with errors", "batch", result.Batch, "error", result.Err)
	}
	if s.refresher != nil {
		s.refresher.Refresh(ctx, result)
	}
	return result
}

func (s *Stack) save(ctx context.Context, uris []protocol.DocumentUri) []error {
	if s.intercept != nil {
		defer s.intercept.Hold(session.Batch)()
	}
	var errs []error
	for _, uri := range uris {
		if err := s.host.Save(ctx, uri); err != nil {
			flushFailures.WithLabelValues("save").Inc()
			errs = append(errs, fmt.Errorf("failed to save %s: %w", uri, err))
		}
	}
	return errs
}

// preview returns the text each touched document would have after a flush,
// without applying anything.
func (s *Stack) preview() map[protocol.DocumentUri]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := map[protocol.DocumentUri]string{}
	for _, e := range Ordered(s.edits) {
		text, ok := texts[e.Document.URI]
		if !ok {
			text = e.Document.Text
		}
		texts[e.Document.URI] = e.Apply(text)
	}
	return texts
}
