package edits

import (
	"context"
	"strings"

	"archsync/internal/document"
	"archsync/internal/textrange"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// RemovePort deletes a port declaration from its keyword through its
// closing brace. A range without a "{" belongs to a port created by an
// "embed ... as ..." line and is removed as an embed instead. Without a
// range the port is located by name.
func (b *Builder) RemovePort(ctx context.Context, req RemovePortRequest) (Edit, bool) {
	if !b.valid("remove.port", req) {
		return Edit{}, false
	}
	doc, ok := b.open(ctx, req.Filename)
	if !ok {
		return Edit{}, false
	}

	if req.Range == nil {
		r, ok := b.locator.ScopeInService(doc.Text, req.ServiceName, req.PortType+" "+req.PortName)
		if !ok {
			return Edit{}, false
		}
		return newDelete(doc, r), true
	}

	anchor, ok := resolveAnchor(doc, *req.Range)
	if !ok {
		return Edit{}, false
	}
	if !strings.Contains(doc.Slice(anchor), "{") {
		return removeEmbedRange(doc, *req.Range)
	}

	r, ok := extendToKeyword(doc, *req.Range, req.PortType)
	if !ok {
		return Edit{}, false
	}
	if end, ok := b.locator.FindBraceScope(doc.Text, r.Start); ok && textrange.Less(r.End, end) {
		r.End = end
	}
	return newDelete(doc, r), true
}

// RemoveEmbed deletes an embed statement.
func (b *Builder) RemoveEmbed(ctx context.Context, req RemoveEmbedRequest) (Edit, bool) {
	if !b.valid("remove.embed", req) {
		return Edit{}, false
	}
	doc, ok := b.open(ctx, req.Filename)
	if !ok {
		return Edit{}, false
	}
	if req.Range != nil {
		if _, ok := resolveAnchor(doc, *req.Range); !ok {
			return Edit{}, false
		}
		return removeEmbedRange(doc, *req.Range)
	}
	return b.removeEmbedByName(doc, req)
}

func removeEmbedRange(doc *document.Document, r textrange.SimpleRange) (Edit, bool) {
	extended, ok := extendToKeyword(doc, r, "embed")
	if !ok {
		return Edit{}, false
	}
	return newDelete(doc, extended), true
}

// extendToKeyword extends r back to keyword, or keeps it when it already
// starts with keyword.
func extendToKeyword(doc *document.Document, r textrange.SimpleRange, keyword string) (protocol.Range, bool) {
	resolved := textrange.Resolve(doc.Text, r)
	if strings.HasPrefix(doc.Text[doc.OffsetAt(resolved.Start):], keyword) {
		return resolved, true
	}
	return textrange.ExtendWithPrefixToken(doc.Text, r, keyword)
}

// removeEmbedByName finds "embed <name>" in the service body and deletes it
// through the port it is bound to, if any.
func (b *Builder) removeEmbedByName(doc *document.Document, req RemoveEmbedRequest) (Edit, bool) {
	if req.EmbedName == "" {
		return Edit{}, false
	}
	body, ok := b.locator.ServiceBody(doc.Text, req.ServiceName)
	if !ok {
		return Edit{}, false
	}
	idx := strings.Index(body.Text, "embed "+req.EmbedName)
	if idx < 0 {
		return Edit{}, false
	}
	end := idx + len("embed "+req.EmbedName)
	if req.EmbedPort != "" {
		rest := body.Text[end:]
		portIdx := strings.Index(rest, "as "+req.EmbedPort)
		if portIdx < 0 {
			portIdx = strings.Index(rest, "in "+req.EmbedPort)
		}
		if portIdx < 0 {
			return Edit{}, false
		}
		end += portIdx + len("as "+req.EmbedPort)
	}

	base := doc.OffsetAt(body.Start)
	return newDelete(doc, protocol.Range{
		Start: doc.PositionAt(base + idx),
		End:   doc.PositionAt(base + end),
	}), true
}
