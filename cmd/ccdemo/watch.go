package main

import (
	"context"
	"log"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the bursts of events editors produce on save.
const settleDelay = 150 * time.Millisecond

// watchScenes re-renders scenes whenever a file in their directory
// changes, until ctx is done.
func watchScenes(ctx context.Context, r *runner, scenes []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	byDir := make(map[string][]string)
	for _, path := range scenes {
		dir, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return err
		}
		if _, ok := byDir[dir]; !ok {
			if err := w.Add(dir); err != nil {
				return err
			}
		}
		byDir[dir] = append(byDir[dir], path)
	}
	log.Printf("watching %d directories", len(byDir))

	// Files the renders wrote. Events for them are ignored so an output
	// directory shared with the scenes does not retrigger.
	written := make(map[string]bool)
	dirty := make(map[string]bool)
	timer := time.NewTimer(settleDelay)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || written[name] {
				continue
			}
			for _, path := range byDir[filepath.Dir(name)] {
				dirty[path] = true
			}
			if len(dirty) > 0 {
				timer.Reset(settleDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: %v", err)
		case <-timer.C:
			changed := make([]string, 0, len(dirty))
			for path := range dirty {
				changed = append(changed, path)
			}
			slices.Sort(changed)
			clear(dirty)
			for _, path := range changed {
				files, err := r.render(ctx, path)
				if err != nil {
					log.Print(err)
					continue
				}
				for _, f := range files {
					if abs, err := filepath.Abs(f); err == nil {
						written[abs] = true
					}
				}
				log.Printf("%s -> %v", path, files)
			}
		}
	}
}
