package config

import (
	"context"
	"os"
	"time"
)

// SlotsWatcher polls the slot configuration file and hands every new version
// to OnUpdate. Reload failures go to OnError and the previous version stays
// in effect.
type SlotsWatcher struct {
	Path     string
	Interval time.Duration
	OnUpdate func(*SlotsFile)
	OnError  func(error)

	lastMod time.Time
}

// Start loads the file once, then keeps polling in a goroutine until ctx ends.
func (w *SlotsWatcher) Start(ctx context.Context) error {
	if w.Path == "" {
		w.Path = "configs/slots.yaml"
	}
	if w.Interval <= 0 {
		w.Interval = 30 * time.Second
	}

	if err := w.reload(); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.poll(); err != nil && w.OnError != nil {
					w.OnError(err)
				}
			}
		}
	}()
	return nil
}

// poll reloads the file when its mtime moved forward.
func (w *SlotsWatcher) poll() (bool, error) {
	info, err := os.Stat(w.Path)
	if err != nil {
		return false, err
	}
	if !info.ModTime().After(w.lastMod) {
		return false, nil
	}
	return true, w.reload()
}

func (w *SlotsWatcher) reload() error {
	info, err := os.Stat(w.Path)
	if err != nil {
		return err
	}
	f, err := LoadSlotsFile(w.Path)
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	if w.OnUpdate != nil {
		w.OnUpdate(f)
	}
	return nil
}
