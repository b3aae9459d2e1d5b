// Package architecture keeps the architecture file, the JSON list of
// top-level services the diagram is drawn from, in sync with UI edits and
// with renames in the source files it references.
package architecture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"archsync/internal/document"
	"archsync/internal/scope"
	"archsync/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var log = commonlog.GetLogger("archsync.architecture")

var (
	ErrNoArchitectureFile = errors.New("no architecture file")
	ErrExists             = errors.New("architecture file already exists")
)

var rewrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "archsync_architecture_rewrites_total",
	Help: "Writes of the architecture file, by cause.",
}, []string{"cause"})

// Skeleton is written by Init.
const Skeleton = "[\n\t[\n\t\t{\"file\": \"file.ol\", \"target\": \"ServiceName\"}\n\t]\n]"

// TLS describes one top-level service.
type TLS struct {
	File      string `json:"file,omitempty"`
	Target    string `json:"target,omitempty"`
	Params    any    `json:"params,omitempty"`
	Instances int    `json:"instances,omitempty"`
	Volumes   any    `json:"volumes,omitempty"`
	Args      any    `json:"args,omitempty"`
	Image     string `json:"image,omitempty"`
	Env       any    `json:"env,omitempty"`
}

// Synchronizer reads and writes one architecture file through a document
// host.
type Synchronizer struct {
	path    string
	host    document.Host
	locator scope.Locator
	session *session.Session
}

func New(path string, host document.Host, locator scope.Locator, sess *session.Session) *Synchronizer {
	return &Synchronizer{path: path, host: host, locator: locator, session: sess}
}

func (s *Synchronizer) Path() string { return s.path }

// Init writes the skeleton architecture file. It never overwrites.
func Init(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return fmt.Errorf("failed to create architecture file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(Skeleton); err != nil {
		return fmt.Errorf("failed to write architecture file: %w", err)
	}
	return nil
}

func (s *Synchronizer) open(ctx context.Context) (*document.Document, error) {
	doc, err := s.host.Open(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoArchitectureFile, err)
	}
	return doc, nil
}

// GetContent parses the architecture file.
func (s *Synchronizer) GetContent(ctx context.Context) ([][]TLS, error) {
	doc, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	var content [][]TLS
	if err := json.Unmarshal([]byte(doc.Text), &content); err != nil {
		return nil, fmt.Errorf("failed to parse architecture file: %w", err)
	}
	return content, nil
}

// Snapshot caches the current file content as the last known content.
func (s *Synchronizer) Snapshot(ctx context.Context) error {
	doc, err := s.open(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(doc.Text)); err != nil {
		return fmt.Errorf("failed to parse architecture file: %w", err)
	}
	s.session.SetLastContent(buf.String())
	return nil
}

// Entries returns every entry whose file is path, in file order.
func (s *Synchronizer) Entries(ctx context.Context, path string) ([]TLS, error) {
	content, err := s.GetContent(ctx)
	if err != nil {
		return nil, err
	}
	var entries []TLS
	for _, group := range content {
		for _, tls := range group {
			if matches(tls.File, path) {
				entries = append(entries, tls)
			}
		}
	}
	return entries, nil
}

// matches reports whether an entry's file, relative to the architecture
// file, names path.
func matches(file, path string) bool {
	if file == "" {
		return false
	}
	file = strings.TrimPrefix(filepath.ToSlash(file), "/")
	path = filepath.ToSlash(path)
	return path == file || strings.HasSuffix(path, "/"+file)
}

// HasTargetNameChanged reports whether the service tls targets is no longer
// declared in its file. Entries without a file or target never change, and
// neither does an entry whose file cannot be opened.
func (s *Synchronizer) HasTargetNameChanged(ctx context.Context, tls TLS) bool {
	if tls.File == "" || tls.Target == "" {
		return false
	}
	doc, err := s.host.Open(ctx, s.resolve(tls.File))
	if err != nil {
		log.Debug("cannot check target", "file", tls.File, "error", err)
		return false
	}
	for _, name := range s.locator.ServiceNames(doc.Text) {
		if name == tls.Target {
			return false
		}
	}
	return true
}

func (s *Synchronizer) resolve(file string) string {
	return filepath.Join(filepath.Dir(s.path), strings.TrimPrefix(filepath.ToSlash(file), "/"))
}

// SetContent replaces the architecture file with the "content" member of
// detail. Nothing is written when it equals the last known content. It
// reports whether the file was written.
func (s *Synchronizer) SetContent(ctx context.Context, detail json.RawMessage) (bool, error) {
	var msg struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(detail, &msg); err != nil {
		return false, fmt.Errorf("failed to decode architecture content: %w", err)
	}
	if len(msg.Content) == 0 {
		return false, fmt.Errorf("%w: empty content", ErrNoArchitectureFile)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, msg.Content); err != nil {
		return false, fmt.Errorf("failed to compact architecture content: %w", err)
	}
	return s.write(ctx, buf.String(), "ui")
}

func (s *Synchronizer) write(ctx context.Context, content, cause string) (bool, error) {
	if content == s.session.LastContent() {
		return false, nil
	}
	doc, err := s.open(ctx)
	if err != nil {
		return false, err
	}

	defer s.session.Intercept.Hold(session.Single)()
	edit := protocol.TextEdit{
		Range:   protocol.Range{Start: protocol.Position{}, End: doc.End()},
		NewText: content,
	}
	if err := s.host.Apply(ctx, doc.URI, []protocol.TextEdit{edit}); err != nil {
		return false, err
	}
	if err := s.host.Save(ctx, doc.URI); err != nil {
		return false, fmt.Errorf("could not overwrite architecture file %s: %w", doc.Path, err)
	}
	s.session.SetLastContent(content)
	rewrites.WithLabelValues(cause).Inc()
	log.Info("wrote architecture file", "path", doc.Path, "cause", cause)
	return true, nil
}

// Retarget rewrites the entry before when its target is no longer declared
// in path. Only the first entry for path with before's target changes;
// other entries for the same file are left alone. The new target is
// renamed if the file declares it, otherwise the first declared service
// no other entry for the file targets. With no candidate the target is
// removed. Keys the UI added that TLS does not model are preserved.
func (s *Synchronizer) Retarget(ctx context.Context, path string, before TLS, renamed string) (bool, error) {
	if !s.HasTargetNameChanged(ctx, before) {
		return false, nil
	}
	doc, err := s.open(ctx)
	if err != nil {
		return false, err
	}
	var content [][]map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc.Text), &content); err != nil {
		return false, fmt.Errorf("failed to parse architecture file: %w", err)
	}

	var entry map[string]json.RawMessage
	taken := map[string]bool{}
	for _, group := range content {
		for _, e := range group {
			if !matches(stringField(e, "file"), path) {
				continue
			}
			target := stringField(e, "target")
			if entry == nil && target == before.Target {
				entry = e
				continue
			}
			taken[target] = true
		}
	}
	if entry == nil {
		return false, nil
	}

	var declared []string
	if src, err := s.host.Open(ctx, s.resolve(before.File)); err == nil {
		declared = s.locator.ServiceNames(src.Text)
	}
	target := pickTarget(declared, renamed, taken)
	if target == "" {
		delete(entry, "target")
	} else {
		raw, _ := json.Marshal(target)
		entry["target"] = raw
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(content); err != nil {
		return false, fmt.Errorf("failed to encode architecture file: %w", err)
	}
	log.Info("retargeting top-level service", "file", before.File, "from", before.Target, "to", target)
	return s.write(ctx, strings.TrimSpace(buf.String()), "retarget")
}

func pickTarget(declared []string, renamed string, taken map[string]bool) string {
	for _, name := range declared {
		if renamed != "" && name == renamed {
			return name
		}
	}
	for _, name := range declared {
		if !taken[name] {
			return name
		}
	}
	return ""
}

func stringField(entry map[string]json.RawMessage, key string) string {
	var v string
	if raw, ok := entry[key]; ok {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}
