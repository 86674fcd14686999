package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotationConfig controls when a log file is rotated and how long rotated
// backups are kept around.
type RotationConfig struct {
	MaxSize    int64         // rotate once the active file reaches this many bytes
	MaxAge     time.Duration // backups older than this are deleted
	MaxBackups int           // backups beyond this count (oldest first) are deleted
}

// DefaultRotationConfig returns the rotation policy the proxy runs with;
// nothing about it is configurable from the CLI.
func DefaultRotationConfig() *RotationConfig {
	return &RotationConfig{
		MaxSize:    100 * 1024 * 1024,
		MaxAge:     7 * 24 * time.Hour,
		MaxBackups: 5,
	}
}

// rotatingWriter is an io.Writer over a log file that rotates itself once it
// crosses config.MaxSize and periodically deletes backups older than
// config.MaxAge or beyond config.MaxBackups. zerolog writes through it like
// any other io.Writer; it has no idea rotation is happening underneath.
type rotatingWriter struct {
	mu       sync.Mutex
	file     *os.File
	dir      string
	filename string
	config   *RotationConfig
	stop     chan struct{}
}

func newRotatingWriter(dir, filename string, config *RotationConfig) (*rotatingWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultRotationConfig()
	}

	file, err := os.OpenFile(filepath.Join(dir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	w := &rotatingWriter{
		file:     file,
		dir:      dir,
		filename: filename,
		config:   config,
		stop:     make(chan struct{}),
	}
	go w.periodicCleanup()
	return w, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if info, err := w.file.Stat(); err == nil && info.Size() >= w.config.MaxSize {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	return w.file.Write(p)
}

func (w *rotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102150405")
	rotatedPath := fmt.Sprintf("%s.%s", filepath.Join(w.dir, w.filename), timestamp)
	if err := os.Rename(filepath.Join(w.dir, w.filename), rotatedPath); err != nil {
		return err
	}

	file, err := os.OpenFile(filepath.Join(w.dir, w.filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.file = file
	return nil
}

func (w *rotatingWriter) periodicCleanup() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.cleanOldLogs()
		case <-w.stop:
			return
		}
	}
}

func (w *rotatingWriter) cleanOldLogs() {
	pattern := filepath.Join(w.dir, w.filename+".*")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	var backups []backup
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		backups = append(backups, backup{f, info.ModTime()})
	}

	now := time.Now()
	for _, b := range backups {
		if now.Sub(b.modTime) > w.config.MaxAge {
			os.Remove(b.path)
		}
	}

	if excess := len(backups) - w.config.MaxBackups; excess > 0 {
		for i := 0; i < excess; i++ {
			oldest := 0
			for j := 1; j < len(backups); j++ {
				if backups[j].modTime.Before(backups[oldest].modTime) {
					oldest = j
				}
			}
			os.Remove(backups[oldest].path)
			backups = append(backups[:oldest], backups[oldest+1:]...)
		}
	}
}

func (w *rotatingWriter) Close() error {
	close(w.stop)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
