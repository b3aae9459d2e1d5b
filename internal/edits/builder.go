package edits

import (
	"context"

	"archsync/internal/document"
	"archsync/internal/scope"

	"github.com/go-playground/validator/v10"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("archsync.edits")

// Builder turns requests into edits. It reads documents through the host
// but never applies anything.
type Builder struct {
	host      document.Host
	project   document.Project
	locator   scope.Locator
	renamer   document.Renamer
	validate  *validator.Validate
	extension string
}

func NewBuilder(host document.Host, project document.Project, locator scope.Locator, renamer document.Renamer, extension string) *Builder {
	if extension == "" {
		extension = ".ol"
	}
	return &Builder{
		host:      host,
		project:   project,
		locator:   locator,
		renamer:   renamer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		extension: extension,
	}
}

// valid reports whether req passes validation. A failure is a precondition
// miss like any other, so it is logged rather than returned.
func (b *Builder) valid(op string, req any) bool {
	if err := b.validate.Struct(req); err != nil {
		log.Warning("rejected request", "op", op, "error", err)
		return false
	}
	return true
}

// open returns the document or false when it cannot be opened.
func (b *Builder) open(ctx context.Context, name string) (*document.Document, bool) {
	doc, err := b.host.Open(ctx, name)
	if err != nil {
		log.Warning("failed to open document", "file", name, "error", err)
		return nil, false
	}
	return doc, true
}
