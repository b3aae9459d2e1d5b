package edits

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"archsync/internal/textrange"

	"golang.org/x/sync/errgroup"
)

// portBlock renders a port declaration, indented for a service body.
func portBlock(portType string, p Port) string {
	var sb strings.Builder
	if p.Annotation != "" {
		fmt.Fprintf(&sb, "\t/// %s\n", p.Annotation)
	}
	fmt.Fprintf(&sb, "\t%s %s {\n", portType, p.Name)
	fmt.Fprintf(&sb, "\t\tLocation: \"%s\"\n", p.Location)
	fmt.Fprintf(&sb, "\t\tProtocol: %s\n", p.Protocol)
	if names := p.Interfaces.Names(); len(names) > 0 {
		fmt.Fprintf(&sb, "\t\tInterfaces: %s\n", strings.Join(names, ", "))
	} else {
		sb.WriteString("\t\tOneWay: dummy(void)\n")
	}
	if len(p.Aggregates) > 0 {
		fmt.Fprintf(&sb, "\t\tAggregates: %s\n", strings.Join(p.Aggregates, ", "))
	}
	sb.WriteString("\t}")
	return sb.String()
}

func embedLine(name, port string, as *bool) string {
	if (as != nil && !*as) || port == "" {
		return "embed " + name
	}
	return "embed " + name + " as " + port
}

// CreatePort inserts a port declaration. The first port of a service goes
// right after the opening brace at or after the anchor; any other port goes
// at the end of the anchor range.
func (b *Builder) CreatePort(ctx context.Context, req CreatePortRequest) (Edit, bool) {
	if !b.valid("create.port", req) {
		return Edit{}, false
	}
	doc, ok := b.open(ctx, req.File)
	if !ok {
		return Edit{}, false
	}
	anchor, ok := resolveAnchor(doc, req.Range)
	if !ok {
		return Edit{}, false
	}
	at := anchor.End
	if req.IsFirst {
		extended, ok := textrange.ExtendWithSuffixToken(doc.Text, req.Range, "{")
		if !ok {
			return Edit{}, false
		}
		at = extended.End
	}
	return newInsert(doc, at, "\n\n"+portBlock(req.PortType, req.Port)), true
}

// CreateEmbed inserts an embed statement.
func (b *Builder) CreateEmbed(ctx context.Context, req CreateEmbedRequest) (Edit, bool) {
	if !b.valid("create.embed", req) {
		return Edit{}, false
	}
	doc, ok := b.open(ctx, req.Filename)
	if !ok {
		return Edit{}, false
	}
	anchor, ok := resolveAnchor(doc, req.Range)
	if !ok {
		return Edit{}, false
	}
	at := anchor.End
	if req.IsFirst {
		extended, ok := textrange.ExtendWithSuffixToken(doc.Text, req.Range, "{")
		if !ok {
			return Edit{}, false
		}
		at = extended.End
	}
	return newInsert(doc, at, "\n\t"+embedLine(req.EmbedName, req.EmbedPort, req.EmbedAs)), true
}

// CreateService appends a service block at the anchor, or at the end of
// the file when the request has no range.
func (b *Builder) CreateService(ctx context.Context, req CreateServiceRequest) (Edit, bool) {
	if !b.valid("create.service", req) {
		return Edit{}, false
	}
	doc, ok := b.open(ctx, req.File)
	if !ok {
		return Edit{}, false
	}
	at := doc.End()
	if req.Range != nil {
		anchor, ok := resolveAnchor(doc, *req.Range)
		if !ok {
			return Edit{}, false
		}
		at = anchor.End
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n\nservice %s {\n", req.Name)
	if req.Execution != "" {
		fmt.Fprintf(&sb, "\texecution{ %s }\n", req.Execution)
	}
	for _, op := range req.OutputPorts {
		sb.WriteString("\n" + portBlock("outputPort", op) + "\n")
	}
	for _, ip := range req.InputPorts {
		sb.WriteString("\n" + portBlock("inputPort", ip) + "\n")
	}
	if len(req.Embeddings) > 0 {
		sb.WriteString("\n")
	}
	for _, e := range req.Embeddings {
		sb.WriteString("\t" + embedLine(e.Name, e.Port, e.As) + "\n")
	}
	sb.WriteString("}\n")

	return newInsert(doc, at, sb.String()), true
}

// CreateImportIfMissing adds "from <path> import <name>" to the top of
// fileName unless the name is already imported. An empty importPath is
// looked up by finding the project file that declares name with keyword;
// keyword defaults to "interface". It reports false when no file declares
// the name, when fileName declares it itself, or when the import exists.
func (b *Builder) CreateImportIfMissing(ctx context.Context, fileName, importPath, name, keyword string) (Edit, bool) {
	if name == "" {
		return Edit{}, false
	}
	if keyword == "" {
		keyword = "interface"
	}
	doc, ok := b.open(ctx, fileName)
	if !ok {
		return Edit{}, false
	}
	if b.locator.Declares(doc.Text, keyword, name) {
		return Edit{}, false
	}
	if importPath == "" {
		found, ok := b.findTokenInProject(ctx, name, keyword)
		if !ok {
			return Edit{}, false
		}
		importPath = found
	}
	if clean(importPath) == clean(fileName) {
		return Edit{}, false
	}

	rel, err := filepath.Rel(filepath.Dir(clean(fileName)), clean(importPath))
	if err != nil {
		log.Warning("failed to relate import path", "from", fileName, "to", importPath, "error", err)
		return Edit{}, false
	}
	modulePath := JoliePath(rel, b.extension)
	if b.locator.IsImported(doc.Text, modulePath, name) {
		return Edit{}, false
	}
	line := fmt.Sprintf("from %s import %s\n", modulePath, name)
	return newInsert(doc, doc.PositionAt(0), line), true
}

func clean(name string) string {
	return filepath.Clean(strings.TrimPrefix(filepath.ToSlash(name), "/"))
}

// JoliePath converts a relative file path into dotted import notation:
// "../lib/log.ol" becomes "..lib.log" and "log.ol" becomes ".log".
func JoliePath(rel, extension string) string {
	p := filepath.ToSlash(strings.TrimSuffix(rel, extension))
	p = strings.ReplaceAll(p, "../", ".")
	p = strings.ReplaceAll(p, "/", ".")
	return "." + p
}

// findTokenInProject returns the first source file, in project order,
// that declares name with keyword.
func (b *Builder) findTokenInProject(ctx context.Context, name, keyword string) (string, bool) {
	files, err := b.project.SourceFiles(ctx)
	if err != nil {
		log.Warning("failed to list source files", "error", err)
		return "", false
	}

	declares := make([]bool, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, f := range files {
		g.Go(func() error {
			doc, err := b.host.Open(gctx, f)
			if err != nil {
				log.Debug("skipping unreadable file", "file", f, "error", err)
				return nil
			}
			declares[i] = b.locator.Declares(doc.Text, keyword, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", false
	}
	for i, ok := range declares {
		if ok {
			return files[i], true
		}
	}
	return "", false
}
