package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Scan walks the project and calls callback with the path and content of
// every source file. Directories starting with "." or listed in the ignore
// list are skipped entirely. Scan returns once all callbacks have completed.
func (w *Workspace) Scan(callback func(path string, content []byte)) error {
	fileCh := make(chan string, 100)
	var wg sync.WaitGroup

	// worker goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range fileCh {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warning("read error", "path", path, "error", err)
				continue
			}
			callback(path, data)
		}
	}()

	log.Debugf("starting walk at %q", w.root)
	err := walk(w.root, w.opts.IgnoreDirs, func(path string) error {
		if filepath.Ext(path) == w.opts.Extension {
			fileCh <- path
		}
		return nil
	})

	// no more files to send
	close(fileCh)
	wg.Wait()
	return err
}

func walk(root string, ignore []string, visit func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warning("walk error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != root && ignoreDir(d.Name(), ignore) {
				return fs.SkipDir
			}
			return nil
		}
		return visit(path)
	})
}

func ignoreDir(name string, ignore []string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, i := range ignore {
		if name == i {
			return true
		}
	}
	return false
}
