package edits

import (
	"context"
	"sort"
	"strings"

	"archsync/internal/document"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// RenameService delegates the rename of a service name to the renamer so
// every reference in the project follows.
func (b *Builder) RenameService(ctx context.Context, req RenameServiceRequest) ([]Edit, bool) {
	if !b.valid("rename.service", req) {
		return nil, false
	}
	doc, ok := b.open(ctx, req.Filename)
	if !ok {
		return nil, false
	}
	after, ok := b.locator.FindKeywordPosition(doc.Text, req.OldServiceName, "ervice")
	if !ok {
		return nil, false
	}
	pos := doc.PositionAt(doc.OffsetAt(after) - len(req.OldServiceName))
	return b.renameToken(ctx, doc, pos, req.NewServiceName)
}

// RenamePort renames a port or rewrites one of its properties. Names go
// through the renamer. Location and protocol values have no references
// elsewhere, so they are replaced in place.
func (b *Builder) RenamePort(ctx context.Context, req RenamePortRequest) ([]Edit, bool) {
	if !b.valid("rename.port", req) {
		return nil, false
	}
	doc, ok := b.open(ctx, req.Filename)
	if !ok {
		return nil, false
	}

	switch req.EditType {
	case EditPortName:
		pos, ok := b.locator.TokenInService(doc.Text, req.ServiceName, req.OldLine, req.PortType)
		if !ok {
			return nil, false
		}
		return b.renameToken(ctx, doc, pos, req.NewLine)
	case EditLocation, EditProtocol:
		e, ok := b.replacePortLine(doc, req)
		if !ok {
			return nil, false
		}
		return []Edit{e}, true
	}
	return nil, false
}

func (b *Builder) replacePortLine(doc *document.Document, req RenamePortRequest) (Edit, bool) {
	port, ok := b.locator.ScopeInService(doc.Text, req.ServiceName, req.PortType+" "+req.PortName)
	if !ok {
		return Edit{}, false
	}
	idx := strings.Index(doc.Slice(port), req.OldLine)
	if idx < 0 {
		return Edit{}, false
	}
	start := doc.OffsetAt(port.Start) + idx
	return newReplace(doc, protocol.Range{
		Start: doc.PositionAt(start),
		End:   doc.PositionAt(start + len(req.OldLine)),
	}, req.NewLine), true
}

// renameToken asks the renamer for a project-wide edit and converts it.
// Nothing to rename, or a renamer error, is a precondition miss.
func (b *Builder) renameToken(ctx context.Context, doc *document.Document, pos protocol.Position, newName string) ([]Edit, bool) {
	if b.renamer == nil {
		return nil, false
	}
	we, err := b.renamer.Rename(ctx, doc, pos, newName)
	if err != nil {
		log.Warning("rename failed", "uri", doc.URI, "error", err)
		return nil, false
	}
	if we == nil || len(we.Changes) == 0 {
		return nil, false
	}
	return b.fromWorkspaceEdit(ctx, doc, we)
}

func (b *Builder) fromWorkspaceEdit(ctx context.Context, origin *document.Document, we *protocol.WorkspaceEdit) ([]Edit, bool) {
	uris := make([]protocol.DocumentUri, 0, len(we.Changes))
	for uri := range we.Changes {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	var result []Edit
	for _, uri := range uris {
		doc := origin
		if uri != origin.URI {
			path, err := document.URIToPath(uri)
			if err != nil {
				log.Warning("skipping rename target", "uri", uri, "error", err)
				continue
			}
			var ok bool
			if doc, ok = b.open(ctx, path); !ok {
				return nil, false
			}
		}
		for _, te := range we.Changes[uri] {
			result = append(result, newReplace(doc, te.Range, te.NewText))
		}
	}
	return result, len(result) > 0
}
