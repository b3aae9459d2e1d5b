package architecture_test

import (
	"context"
	"errors"

	"archsync/internal/document"
	"archsync/internal/session"
	"archsync/internal/workspace"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

type interceptRecorder struct {
	intercept *session.Intercept
	seen      []bool
}

func (p *interceptRecorder) BeforeSave(ctx context.Context, doc *document.Document) document.SaveState {
	return nil
}

func (p *interceptRecorder) AfterSave(ctx context.Context, doc *document.Document, state document.SaveState) {
	p.seen = append(p.seen, p.intercept.Active())
}

// flakyHost fails the first saves.
type flakyHost struct {
	*workspace.Workspace
	failures int
}

func (h *flakyHost) Save(ctx context.Context, uri protocol.DocumentUri) error {
	if h.failures > 0 {
		h.failures--
		return errors.New("disk full")
	}
	return h.Workspace.Save(ctx, uri)
}
