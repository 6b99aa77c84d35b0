package modelsource

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WaitForModel blocks until LocateComplete(dir) succeeds, the timeout expires,
// or ctx is done. The platform may still be copying the model when the process starts, so
// the directory is watched with fsnotify instead of failing immediately. A zero
// timeout checks once.
func WaitForModel(ctx context.Context, dir string, timeout time.Duration, logger *zap.Logger) (Files, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	files, err := LocateComplete(dir)
	if err == nil || timeout <= 0 {
		return files, err
	}

	watcher, werr := fsnotify.NewWatcher()
	if werr != nil {
		return Files{}, fmt.Errorf("failed to create watcher: %w", werr)
	}
	defer watcher.Close()
	if werr := watcher.Add(dir); werr != nil {
		return Files{}, fmt.Errorf("failed to watch %s: %w", dir, werr)
	}
	watched := map[string]bool{dir: true}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	logger.Info("waiting for model files", zap.String("dir", dir), zap.Duration("timeout", timeout))

	// Re-check after adding the watch so files created in between are not missed.
	if files, err := LocateComplete(dir); err == nil {
		return files, nil
	}
	for {
		select {
		case <-ctx.Done():
			return Files{}, fmt.Errorf("model not available in %s after %s: %w", dir, timeout, err)
		case event, ok := <-watcher.Events:
			if !ok {
				return Files{}, fmt.Errorf("watcher closed while waiting for %s", dir)
			}
			logger.Debug("model dir event", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if event.Has(fsnotify.Create) && !watched[event.Name] && isDir(event.Name) {
				// Subdirectories such as onnx/ or a versioned mount.
				if addErr := watcher.Add(event.Name); addErr == nil {
					watched[event.Name] = true
				}
			}
			files, lerr := LocateComplete(dir)
			if lerr == nil {
				return files, nil
			}
			err = lerr
		case werr, ok := <-watcher.Errors:
			if !ok {
				return Files{}, fmt.Errorf("watcher closed while waiting for %s", dir)
			}
			logger.Warn("model dir watch error", zap.Error(werr))
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
