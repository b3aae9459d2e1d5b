package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"archsync/internal/config"
	"archsync/internal/server"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// Version will be set during the build process using ldflags
var Version = "(dev) v0.0.0"

var (
	logfile   string
	verbosity int
	root      string

	rootCmd = &cobra.Command{
		Use:   "archsync",
		Short: "Keep a Jolie architecture diagram in sync with its sources",
		Long: `archsync applies diagram edits to Jolie sources and keeps the
architecture file current when sources are edited by hand.

Run without a subcommand it serves the language server protocol on stdio.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
		RunE: runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the language server protocol on stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	uiCmd = &cobra.Command{
		Use:   "ui",
		Short: "Run the diagram UI without an editor, watching the project for changes",
		Args:  cobra.NoArgs,
		RunE:  runUI,
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create an empty architecture file in the project",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print the services found in every source file as JSON",
		Args:  cobra.NoArgs,
		RunE:  runDump,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recently flushed edit batches",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Print the deployment data for the architecture",
		Args:  cobra.NoArgs,
		RunE:  runBuild,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logfile, "logfile", "", "Path to log file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity")
	rootCmd.PersistentFlags().StringVarP(&root, "root", "C", ".", "Project root")

	historyCmd.Flags().Int("limit", 20, "Number of batches to list")

	rootCmd.AddCommand(serveCmd, uiCmd, initCmd, dumpCmd, historyCmd, buildCmd)
}

func main() {
	// 4 Cores
	runtime.GOMAXPROCS(4)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "archsync:", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	if logfile == "" {
		// stderr; stdout carries the protocol in serve mode
		commonlog.Configure(verbosity, nil)
		return nil
	}
	f, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	f.Close()
	commonlog.Configure(verbosity+1, &logfile)
	log.SetOutput(commonlog.GetWriter())
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	s := server.NewServer(config.Default(), verbosity > 1)
	if err := s.RunStdio(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// projectConfig resolves --root and reads the project file under it.
func projectConfig() (string, config.Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", config.Config{}, err
	}
	cfg, err := config.LoadProject(config.Default(), abs)
	if err != nil {
		return "", config.Config{}, err
	}
	return abs, cfg, nil
}
