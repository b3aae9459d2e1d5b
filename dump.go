package main

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"

	"archsync/internal/scope"
	"archsync/internal/workspace"

	"github.com/spf13/cobra"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/sync/errgroup"
)

type dumpedPort struct {
	Kind  string         `json:"kind"`
	Name  string         `json:"name"`
	Range protocol.Range `json:"range"`
}

type dumpedService struct {
	Name   string            `json:"name"`
	Start  protocol.Position `json:"start"`
	Ports  []dumpedPort      `json:"ports,omitempty"`
	Embeds []string          `json:"embeds,omitempty"`
}

type dumpedFile struct {
	File     string          `json:"file"`
	Services []dumpedService `json:"services"`
}

func runDump(cmd *cobra.Command, args []string) error {
	dir, cfg, err := projectConfig()
	if err != nil {
		return err
	}
	ws := workspace.New(dir, filepath.Dir(cfg.ArchitecturePath(dir)), workspace.Options{
		Extension:  cfg.SourceExtension,
		IgnoreDirs: cfg.IgnoreDirs,
	})

	var (
		mu    sync.Mutex
		files []dumpedFile
	)
	g, _ := errgroup.WithContext(cmd.Context())
	g.SetLimit(8)
	err = ws.Scan(func(path string, content []byte) {
		text := string(content)
		rel := ws.Rel(path)
		g.Go(func() error {
			f := dumpFile(rel, text)
			mu.Lock()
			files = append(files, f)
			mu.Unlock()
			return nil
		})
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].File < files[j].File })
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(files)
}

func dumpFile(rel, text string) dumpedFile {
	l := scope.BraceLocator{}
	f := dumpedFile{File: rel, Services: []dumpedService{}}
	for _, name := range l.ServiceNames(text) {
		body, ok := l.ServiceBody(text, name)
		if !ok {
			continue
		}
		svc := dumpedService{Name: name, Start: body.Start, Embeds: l.Declared(body.Text, "embed")}
		for _, kind := range []string{"inputPort", "outputPort"} {
			for _, port := range l.Declared(body.Text, kind) {
				r, ok := l.ScopeInService(text, name, kind+" "+port)
				if !ok {
					continue
				}
				svc.Ports = append(svc.Ports, dumpedPort{Kind: kind, Name: port, Range: r})
			}
		}
		f.Services = append(f.Services, svc)
	}
	return f
}
