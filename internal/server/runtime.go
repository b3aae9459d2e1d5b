package server

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"archsync/internal/architecture"
	"archsync/internal/config"
	"archsync/internal/document"
	"archsync/internal/edits"
	"archsync/internal/panel"
	"archsync/internal/rename"
	"archsync/internal/scheduler"
	"archsync/internal/scope"
	"archsync/internal/session"
	"archsync/internal/store"
	"archsync/internal/summary"
	"archsync/internal/syncer"
	"archsync/internal/workspace"
)

// Runtime is one synchronized workspace: the document host, the state
// store, the scheduler, the coordinator and its UI server.
type Runtime struct {
	Root         string
	Architecture string
	Config       config.Config

	Workspace   *workspace.Workspace
	Store       *store.Store
	Scheduler   *scheduler.Scheduler
	Session     *session.Session
	Coordinator *syncer.Coordinator
	Panel       *panel.Server

	closers []io.Closer
}

// NewRuntime wires a workspace rooted at root. editor may be nil.
func NewRuntime(root string, cfg config.Config, editor syncer.Editor) (*Runtime, error) {
	if root == "" {
		return nil, config.ErrNoWorkspace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{
		Root:         filepath.Clean(root),
		Architecture: cfg.ArchitecturePath(root),
		Config:       cfg,
	}

	stateDir, err := cfg.StatePath(r.Root)
	if err != nil {
		return nil, err
	}
	r.Store, err = store.Open(filepath.Join(stateDir, "state.db"))
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, r.Store)

	r.Workspace = workspace.New(r.Root, filepath.Dir(r.Architecture), workspace.Options{
		Extension:  cfg.SourceExtension,
		IgnoreDirs: cfg.IgnoreDirs,
	})

	var renamer document.Renamer = rename.NewTextRenamer(r.Workspace, r.Workspace)
	if len(cfg.RenameCommand) > 0 {
		lsp := rename.NewLSPRenamer(cfg.RenameCommand, r.Root)
		r.closers = append(r.closers, lsp)
		renamer = lsp
	}

	r.Scheduler = scheduler.NewScheduler(64)
	r.Scheduler.Run()

	locator := scope.BraceLocator{}
	r.Session = session.New(r.Architecture, cfg.FileVersions, r.Store)
	r.Coordinator = syncer.New(syncer.Options{
		ArchitectureFile: r.Architecture,
		Extension:        cfg.SourceExtension,
		Session:          r.Session,
		Scheduler:        r.Scheduler,
		Host:             r.Workspace,
		Builder:          edits.NewBuilder(r.Workspace, r.Workspace, locator, renamer, cfg.SourceExtension),
		Architecture:     architecture.New(r.Architecture, r.Workspace, locator, r.Session),
		Summarizer:       summary.NewCommand(cfg.SummaryCommand, filepath.Dir(r.Architecture)),
		Journal:          r.Store,
		Editor:           editor,
	})
	r.Workspace.AddHooks(r.Coordinator)

	r.Panel = panel.NewServer(r.Coordinator)
	r.Coordinator.SetPoster(r.Panel)

	r.Scheduler.SchedulePeriodicTask(time.Hour, scheduler.Task{
		Name: "prune-history",
		Execute: func(ctx context.Context) error {
			n, err := r.Store.PruneBatches(ctx, cfg.HistoryKeep)
			if err != nil {
				return fmt.Errorf("failed to prune history: %w", err)
			}
			if n > 0 {
				log.Info("pruned history", "batches", n)
			}
			return nil
		},
	})

	log.Info("workspace ready", "root", r.Root, "architecture", r.Architecture, "session", r.Session.ID)
	return r, nil
}

// OpenPanel starts the UI server if needed, pushes the current summary
// and returns the UI URL.
func (r *Runtime) OpenPanel(ctx context.Context) (string, error) {
	url, err := r.Panel.Start(r.Config.UIAddr)
	if err != nil {
		return "", fmt.Errorf("failed to start UI server: %w", err)
	}
	if err := r.Coordinator.Open(ctx); err != nil {
		return url, err
	}
	return url, nil
}

// Close stops the scheduler after the queued work, then releases
// everything else.
func (r *Runtime) Close() error {
	if r.Scheduler != nil {
		r.Scheduler.Stop()
	}
	if r.Panel != nil {
		r.Panel.Close()
	}
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
