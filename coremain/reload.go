package coremain

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pmkol/resolver-x/pkg/pool"
)

// editors often write a file in several steps
const reloadDebounce = 500 * time.Millisecond

type configLoader func(path string) (*Config, error)

// loadFullConfig loads path and merges its includes.
func loadFullConfig(path string) (*Config, error) {
	cfg, fileUsed, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := mergeInclude(cfg, 0, []string{fileUsed}); err != nil {
		return nil, fmt.Errorf("failed to load sub config file, %w", err)
	}
	return cfg, nil
}

// watchConfig applies path again every time it changes on disk. The parent
// directory is watched, so files replaced by rename are still seen.
func (s *Server) watchConfig(path string, load configLoader) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher, %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s, %w", filepath.Dir(abs), err)
	}

	s.sc.Attach(func(closeSignal <-chan struct{}) {
		defer w.Close()
		debounce := pool.NewStoppedTimer()
		defer pool.StopTimer(debounce)

		for {
			select {
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(e.Name) != abs || !e.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				pool.StopTimer(debounce)
				debounce.Reset(reloadDebounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", zap.Error(err))
			case <-debounce.C:
				s.reload(abs, load)
			case <-closeSignal:
				return
			}
		}
	})
	s.logger.Info("watching config file", zap.String("file", abs))
	return nil
}

func (s *Server) reload(path string, load configLoader) {
	cfg, err := load(path)
	if err != nil {
		s.logger.Error("failed to reload config, the running config is kept", zap.Error(err))
		return
	}
	if err := s.Apply(cfg); err != nil {
		s.logger.Error("config reloaded with errors", zap.Error(err))
		return
	}
	s.logger.Info("config reloaded", zap.Strings("resolvers", s.ResolverNames()))
}
