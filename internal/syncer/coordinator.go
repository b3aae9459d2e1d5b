// Package syncer ties the synchronization core together. The Coordinator
// turns UI commands into edits, flushes them, implements the save hooks
// and keeps the UI supplied with fresh summaries. Every entry point runs on
// the scheduler, so callbacks never interleave.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"archsync/internal/architecture"
	"archsync/internal/document"
	"archsync/internal/edits"
	"archsync/internal/panel"
	"archsync/internal/scheduler"
	"archsync/internal/session"
	"archsync/internal/store"
	"archsync/internal/summary"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("archsync.syncer")

var (
	commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archsync_ui_commands_total",
		Help: "UI commands handled, by command and result.",
	}, []string{"command", "result"})
	saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archsync_saves_total",
		Help: "Saves seen by the after-save hook, by outcome.",
	}, []string{"outcome"})
)

// Poster delivers messages to the UI.
type Poster interface {
	Post(msg panel.Outbound) error
	SendTo(client string, msg panel.Outbound) error
}

// Editor is the part of the editor the coordinator drives directly.
type Editor interface {
	ShowDocument(ctx context.Context, path string) error
	ShowError(ctx context.Context, message string)
}

// Journal records flushed batches.
type Journal interface {
	RecordBatch(ctx context.Context, b store.Batch) error
}

// Reloader re-reads a file that changed outside the host.
type Reloader interface {
	Reload(ctx context.Context, path string) (*document.Document, error)
}

// Options wires a Coordinator. ArchitectureFile must be absolute. Journal
// and Editor may be nil.
type Options struct {
	ArchitectureFile string
	Extension        string
	Session          *session.Session
	Scheduler        *scheduler.Scheduler
	Host             document.Host
	Builder          *edits.Builder
	Architecture     *architecture.Synchronizer
	Summarizer       summary.Summarizer
	Journal          Journal
	Editor           Editor
}

type Coordinator struct {
	archPath   string
	extension  string
	session    *session.Session
	sched      *scheduler.Scheduler
	stack      *edits.Stack
	builder    *edits.Builder
	arch       *architecture.Synchronizer
	summarizer summary.Summarizer
	journal    Journal
	editor     Editor
	poster     Poster

	// service renames queued but not yet flushed: file -> old -> new.
	// Touched only on the scheduler.
	renames map[string]map[string]string
}

var (
	_ panel.Handler      = (*Coordinator)(nil)
	_ document.SaveHooks = (*Coordinator)(nil)
	_ edits.Refresher    = (*Coordinator)(nil)
)

func New(opts Options) *Coordinator {
	if opts.Extension == "" {
		opts.Extension = ".ol"
	}
	c := &Coordinator{
		archPath:   filepath.Clean(opts.ArchitectureFile),
		extension:  opts.Extension,
		session:    opts.Session,
		sched:      opts.Scheduler,
		builder:    opts.Builder,
		arch:       opts.Architecture,
		summarizer: opts.Summarizer,
		journal:    opts.Journal,
		editor:     opts.Editor,
		renames:    make(map[string]map[string]string),
	}
	c.stack = edits.NewStack(opts.Host, &opts.Session.Intercept, c)
	return c
}

// SetPoster connects the UI. Until then outbound messages are dropped.
func (c *Coordinator) SetPoster(p Poster) {
	c.poster = p
}

func (c *Coordinator) Session() *session.Session { return c.session }

// Pending returns how many edits wait for the next flush.
func (c *Coordinator) Pending() int { return c.stack.Len() }

func (c *Coordinator) run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return c.sched.Do(ctx, scheduler.Task{Name: name, Execute: fn})
}

func (c *Coordinator) post(command, data string) {
	if c.poster == nil {
		log.Debug("no UI connected, dropping message", "command", command)
		return
	}
	if err := c.poster.Post(panel.NewOutbound(command, data)); err != nil {
		log.Warning("failed to post message", "command", command, "error", err)
	}
}

func (c *Coordinator) showError(ctx context.Context, message string) {
	log.Error(message)
	if c.editor != nil {
		c.editor.ShowError(ctx, message)
	}
}

func (c *Coordinator) getData(ctx context.Context) (string, error) {
	data, err := c.summarizer.GetData(ctx, c.archPath, false)
	if err != nil {
		return "", fmt.Errorf("failed to summarize %s: %w", c.archPath, err)
	}
	return data, nil
}

// Open starts a UI session: it caches the architecture file content,
// clears any intercept left behind and pushes the current summary.
func (c *Coordinator) Open(ctx context.Context) error {
	return c.run(ctx, "open", func(ctx context.Context) error {
		if err := c.arch.Snapshot(ctx); err != nil {
			c.showError(ctx, err.Error())
			return err
		}
		c.session.Intercept.Clear()
		data, err := c.getData(ctx)
		if err != nil {
			c.showError(ctx, err.Error())
			return err
		}
		c.session.SwapData(data)
		c.post(panel.InitData, data)
		return nil
	})
}

// Connected sends the last known summary to a new UI client.
func (c *Coordinator) Connected(ctx context.Context, client string) {
	err := c.run(ctx, "connected", func(ctx context.Context) error {
		data := c.session.LastData()
		if data == "" {
			var err error
			if data, err = c.getData(ctx); err != nil {
				return err
			}
			c.session.SwapData(data)
		}
		if c.poster == nil {
			return nil
		}
		return c.poster.SendTo(client, panel.NewOutbound(panel.InitData, data))
	})
	if err != nil {
		log.Warning("could not initialize client", "client", client, "error", err)
	}
}

// HandleMessage runs one UI command. Edits it produces are flushed when
// msg.Save is set.
func (c *Coordinator) HandleMessage(ctx context.Context, msg panel.Inbound) {
	err := c.run(ctx, "ui:"+msg.Command, func(ctx context.Context) error {
		c.dispatch(ctx, msg)
		if msg.Save {
			if result := c.stack.Flush(ctx); result.Err != nil {
				c.showError(ctx, result.Err.Error())
			}
		}
		if msg.FromPopup {
			c.session.Intercept.Clear()
		}
		return nil
	})
	if err != nil {
		log.Error("UI command failed", "command", msg.Command, "error", err)
	}
}

type removePortsDetail struct {
	Ports []edits.RemovePortRequest `json:"ports"`
}

type openFileDetail struct {
	File string `json:"file"`
}

func decode[T any](msg panel.Inbound) (T, bool) {
	var req T
	if err := json.Unmarshal(msg.Detail, &req); err != nil {
		log.Warning("malformed detail", "command", msg.Command, "error", err)
		return req, false
	}
	return req, true
}

func (c *Coordinator) dispatch(ctx context.Context, msg panel.Inbound) {
	result := "ok"
	defer func() { commands.WithLabelValues(msg.Command, result).Inc() }()

	push := func(e edits.Edit, ok bool) {
		if !ok {
			result = "not_found"
			return
		}
		c.stack.Push(e)
	}
	pushAll := func(es []edits.Edit, ok bool) bool {
		if !ok {
			result = "not_found"
			return false
		}
		c.stack.PushAll(es)
		return true
	}

	switch msg.Command {
	case panel.GetData:
		data, err := c.getData(ctx)
		if err != nil {
			result = "error"
			c.showError(ctx, err.Error())
			return
		}
		c.session.SwapData(data)
		c.post(panel.InitData, data)

	case panel.SetData:
		if _, err := c.arch.SetContent(ctx, msg.Detail); err != nil {
			result = "error"
			c.showError(ctx, err.Error())
		}

	case panel.GetRanges:
		data, err := c.getData(ctx)
		if err != nil {
			result = "error"
			c.showError(ctx, err.Error())
			return
		}
		c.post(panel.SetRanges, data)

	case panel.RenamePort:
		if req, ok := decode[edits.RenamePortRequest](msg); ok {
			if !pushAll(c.builder.RenamePort(ctx, req)) {
				c.post(panel.Undo, "")
			}
		}

	case panel.RenameService:
		if req, ok := decode[edits.RenameServiceRequest](msg); ok {
			if !pushAll(c.builder.RenameService(ctx, req)) {
				c.post(panel.Undo, "")
				return
			}
			c.noteRename(req)
		}

	case panel.RemoveEmbed:
		if req, ok := decode[edits.RemoveEmbedRequest](msg); ok {
			push(c.builder.RemoveEmbed(ctx, req))
		}

	case panel.CreateEmbed:
		if req, ok := decode[edits.CreateEmbedRequest](msg); ok {
			push(c.builder.CreateEmbed(ctx, req))
		}

	case panel.RemovePorts:
		if detail, ok := decode[removePortsDetail](msg); ok {
			for _, req := range detail.Ports {
				push(c.builder.RemovePort(ctx, req))
			}
		}

	case panel.CreatePort:
		if req, ok := decode[edits.CreatePortRequest](msg); ok {
			push(c.builder.CreatePort(ctx, req))
		}

	case panel.CreateAggregate:
		if req, ok := decode[edits.AggregatorRequest](msg); ok {
			pushAll(c.builder.CreateAggregator(ctx, req))
		}

	case panel.OpenFile:
		detail, ok := decode[openFileDetail](msg)
		if !ok || detail.File == "" {
			result = "not_found"
			return
		}
		path := filepath.Join(filepath.Dir(c.archPath), detail.File)
		if c.editor == nil {
			log.Info("no editor to show file", "path", path)
			return
		}
		if err := c.editor.ShowDocument(ctx, path); err != nil {
			result = "error"
			log.Warning("could not show file", "path", path, "error", err)
		}

	default:
		result = "unknown"
		log.Warning("unknown UI command", "command", msg.Command)
	}
}

// Flush applies the pending edits.
func (c *Coordinator) Flush(ctx context.Context) (edits.FlushResult, error) {
	var result edits.FlushResult
	err := c.run(ctx, "flush", func(ctx context.Context) error {
		result = c.stack.Flush(ctx)
		return result.Err
	})
	return result, err
}

// Refresh runs after every non-empty flush: it journals the batch, fixes
// architecture entries whose target a flushed edit renamed and pushes the
// new summary.
func (c *Coordinator) Refresh(ctx context.Context, result edits.FlushResult) {
	if c.journal != nil {
		b := store.Batch{
			ID:        result.Batch,
			Session:   c.session.ID,
			StartedAt: result.StartedAt,
			Edits:     result.Applied,
			Files:     []string{},
		}
		for _, doc := range result.Touched {
			b.Files = append(b.Files, doc.Path)
		}
		if result.Err != nil {
			b.Error = result.Err.Error()
		}
		if err := c.journal.RecordBatch(ctx, b); err != nil {
			log.Warning("failed to journal batch", "batch", result.Batch, "error", err)
		}
	}

	for _, doc := range result.Touched {
		if c.isArchitecture(doc.Path) {
			continue
		}
		c.reconcile(ctx, doc.Path)
	}
	clear(c.renames)

	data, err := c.getData(ctx)
	if err != nil {
		c.showError(ctx, err.Error())
		return
	}
	c.session.SwapData(data)
	if summary.IsParseError(data) {
		c.post(panel.InitData, data)
		return
	}
	c.post(panel.SetRanges, data)
}

func (c *Coordinator) noteRename(req edits.RenameServiceRequest) {
	path := c.resolve(req.Filename)
	if c.renames[path] == nil {
		c.renames[path] = make(map[string]string)
	}
	c.renames[path][req.OldServiceName] = req.NewServiceName
}

func (c *Coordinator) resolve(file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(filepath.Dir(c.archPath), strings.TrimPrefix(filepath.ToSlash(file), "/"))
}

// reconcile retargets every architecture entry for path, as recorded now,
// whose service path no longer declares.
func (c *Coordinator) reconcile(ctx context.Context, path string) {
	entries, err := c.arch.Entries(ctx, path)
	if err != nil {
		log.Debug("cannot read architecture file", "error", err)
		return
	}
	c.retarget(ctx, path, entries)
}

func (c *Coordinator) retarget(ctx context.Context, path string, before []architecture.TLS) {
	renamed := c.renames[filepath.Clean(path)]
	for _, tls := range before {
		if _, err := c.arch.Retarget(ctx, path, tls, renamed[tls.Target]); err != nil {
			c.showError(ctx, err.Error())
			return
		}
	}
}

func (c *Coordinator) isArchitecture(path string) bool {
	return filepath.Clean(path) == c.archPath
}

func (c *Coordinator) relevant(doc *document.Document) bool {
	return c.isArchitecture(doc.Path) || filepath.Ext(doc.Path) == c.extension
}

// BeforeSave captures the architecture entries of the file about to be
// saved. They are handed back to AfterSave as the save state.
func (c *Coordinator) BeforeSave(ctx context.Context, doc *document.Document) document.SaveState {
	if c.isArchitecture(doc.Path) || filepath.Ext(doc.Path) != c.extension {
		return nil
	}
	entries, err := c.arch.Entries(ctx, doc.Path)
	if err != nil {
		log.Debug("cannot read architecture file", "error", err)
		return nil
	}
	return entries
}

// AfterSave reacts to a save. Saves this process caused are ignored while
// the intercept is held. An external save of the architecture file
// refreshes the UI; an external save of a source file first retargets its
// architecture entries whose services were renamed.
func (c *Coordinator) AfterSave(ctx context.Context, doc *document.Document, state document.SaveState) {
	if !c.relevant(doc) {
		return
	}
	if c.isArchitecture(doc.Path) && !c.session.Intercept.Active() {
		saves.WithLabelValues("architecture").Inc()
		c.pushIfChanged(ctx)
		return
	}
	if c.session.Intercept.Active() {
		saves.WithLabelValues("intercepted").Inc()
		log.Debug("ignoring own save", "path", doc.Path)
		return
	}
	if !c.session.IsNewVersion(ctx, doc.URI, doc.Version) {
		saves.WithLabelValues("duplicate").Inc()
		return
	}
	saves.WithLabelValues("external").Inc()

	if entries, ok := state.([]architecture.TLS); ok {
		c.retarget(ctx, doc.Path, entries)
	}
	c.pushIfChanged(ctx)
}

func (c *Coordinator) pushIfChanged(ctx context.Context) {
	data, err := c.getData(ctx)
	if err != nil {
		c.showError(ctx, err.Error())
		return
	}
	if c.session.SwapData(data) {
		c.post(panel.InitData, data)
	}
}

// DidSave runs AfterSave on the scheduler, for saves reported by an editor.
func (c *Coordinator) DidSave(ctx context.Context, doc *document.Document, state document.SaveState) error {
	return c.run(ctx, "did-save", func(ctx context.Context) error {
		c.AfterSave(ctx, doc, state)
		return nil
	})
}

// QueueSave is DidSave without waiting. Saves queued one after another
// are processed in order.
func (c *Coordinator) QueueSave(ctx context.Context, doc *document.Document, state document.SaveState) error {
	return c.sched.Submit(ctx, scheduler.Task{Name: "did-save", Execute: func(ctx context.Context) error {
		c.AfterSave(ctx, doc, state)
		return nil
	}})
}

// WillSave runs BeforeSave on the scheduler.
func (c *Coordinator) WillSave(ctx context.Context, doc *document.Document) (document.SaveState, error) {
	var state document.SaveState
	err := c.run(ctx, "will-save", func(ctx context.Context) error {
		state = c.BeforeSave(ctx, doc)
		return nil
	})
	return state, err
}

// ExternalChange handles files written by another process. The save state
// is the architecture entries as they stand, since the file was already
// changed when the write was noticed.
func (c *Coordinator) ExternalChange(ctx context.Context, reloader Reloader, paths []string) error {
	return c.run(ctx, "external-change", func(ctx context.Context) error {
		var errs []error
		for _, path := range paths {
			doc, err := reloader.Reload(ctx, path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			log.Info("file changed externally", "path", path)
			c.AfterSave(ctx, doc, c.BeforeSave(ctx, doc))
		}
		return errors.Join(errs...)
	})
}
