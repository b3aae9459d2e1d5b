package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"archsync/internal/architecture"
	"archsync/internal/server"
	"archsync/internal/store"
	"archsync/internal/summary"
	"archsync/internal/workspace"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
)

var cliLog = commonlog.GetLogger("archsync.cli")

// runUI serves the diagram without an editor. Source changes are picked up
// from the file system instead of save notifications.
func runUI(cmd *cobra.Command, args []string) error {
	dir, cfg, err := projectConfig()
	if err != nil {
		return err
	}
	rt, err := server.NewRuntime(dir, cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onChange := func(paths []string) {
		if err := rt.Coordinator.ExternalChange(ctx, rt.Workspace, paths); err != nil {
			cliLog.Warning("external change not processed", "paths", paths, "error", err)
		}
	}
	w, err := workspace.NewWatcher(rt.Workspace, time.Duration(cfg.Debounce), onChange, rt.Architecture)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	url, err := rt.OpenPanel(ctx)
	if url == "" {
		return err
	}
	if err != nil {
		cliLog.Warning("diagram data unavailable", "error", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), url)

	<-ctx.Done()
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, cfg, err := projectConfig()
	if err != nil {
		return err
	}
	path := cfg.ArchitecturePath(dir)
	if err := architecture.Init(path); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	dir, cfg, err := projectConfig()
	if err != nil {
		return err
	}
	state, err := cfg.StatePath(dir)
	if err != nil {
		return err
	}
	st, err := store.Open(filepath.Join(state, "state.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	batches, err := st.RecentBatches(cmd.Context(), limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tEDITS\tFILES\tERROR")
	for _, b := range batches {
		files := make([]string, len(b.Files))
		for i, f := range b.Files {
			if rel, err := filepath.Rel(dir, f); err == nil {
				f = rel
			}
			files[i] = f
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			b.StartedAt.Local().Format(time.DateTime), b.Edits, strings.Join(files, ","), b.Error)
	}
	return tw.Flush()
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir, cfg, err := projectConfig()
	if err != nil {
		return err
	}
	arch := cfg.ArchitecturePath(dir)
	data, err := summary.NewCommand(cfg.SummaryCommand, filepath.Dir(arch)).
		GetBuildData(cmd.Context(), arch, cfg.BuildMethod, cfg.BuildFolder)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), data)
	return nil
}
