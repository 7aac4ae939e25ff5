package storage

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Exporter archives finished analyses as JSON files, optionally
// gzipped, and prunes archives past the retention window.
type Exporter struct {
	dir       string
	compress  bool
	retention time.Duration
	logger    *logrus.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewExporter(dir string, compress bool, retention time.Duration, logger *logrus.Logger) (*Exporter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	e := &Exporter{
		dir:       dir,
		compress:  compress,
		retention: retention,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if retention > 0 {
		go e.janitor()
	} else {
		close(e.done)
	}

	return e, nil
}

// Export writes one analysis atomically and returns the final path.
func (e *Exporter) Export(analysis *models.ScanAnalysis) (string, error) {
	if analysis == nil {
		return "", fmt.Errorf("%w: nil analysis", models.ErrInvalidInput)
	}

	stamp := analysis.Timestamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	name := fmt.Sprintf("scan_%s_%s.json", sanitizeFilename(analysis.Username), stamp.Format("20060102_150405"))
	finalPath := filepath.Join(e.dir, name)

	tmp, err := os.CreateTemp(e.dir, ".scan_*.json.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp export: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(analysis); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("encode export: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("sync export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("atomic rename: %w", err)
	}

	if e.compress {
		if err := compressFile(finalPath); err != nil {
			e.logger.Warnf("Failed to compress export %s: %v", finalPath, err)
		} else {
			_ = os.Remove(finalPath)
			finalPath += ".gz"
		}
	}

	e.logger.WithField("path", finalPath).Info("Scan exported")
	return finalPath, nil
}

// Load reads an exported analysis back, transparently handling gzip.
func (e *Exporter) Load(path string) (*models.ScanAnalysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gzr.Close()
		reader = gzr
	}

	var analysis models.ScanAnalysis
	if err := json.NewDecoder(reader).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return &analysis, nil
}

// Prune removes exports older than the retention window and returns
// how many files were deleted.
func (e *Exporter) Prune() (int, error) {
	if e.retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-e.retention)

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return 0, fmt.Errorf("read export directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".json.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(e.dir, entry.Name())
			if err := os.Remove(path); err != nil {
				e.logger.Warnf("Failed to remove old export %s: %v", path, err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		e.logger.WithField("removed", removed).Info("Pruned old exports")
	}
	return removed, nil
}

func (e *Exporter) GetStats() map[string]interface{} {
	var files int
	var bytes int64
	entries, err := os.ReadDir(e.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			files++
			if info, err := entry.Info(); err == nil {
				bytes += info.Size()
			}
		}
	}
	return map[string]interface{}{
		"directory":   e.dir,
		"files":       files,
		"total_bytes": bytes,
		"compression": e.compress,
		"retention":   e.retention.String(),
	}
}

func (e *Exporter) Close() {
	e.closeOnce.Do(func() {
		close(e.stop)
	})
	<-e.done
}

func (e *Exporter) janitor() {
	defer close(e.done)
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if _, err := e.Prune(); err != nil {
				e.logger.Warnf("Export pruning failed: %v", err)
			}
		}
	}
}

func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for compress: %w", err)
	}
	defer in.Close()

	tmpPath := path + ".gz.tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create gzip temp: %w", err)
	}

	gzw, err := gzip.NewWriterLevel(out, gzip.DefaultCompression)
	if err != nil {
		out.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("gzip writer: %w", err)
	}

	_, copyErr := io.Copy(gzw, in)
	closeErr1 := gzw.Close()
	closeErr2 := out.Close()

	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("gzip copy: %w", copyErr)
	}
	if closeErr1 != nil || closeErr2 != nil {
		_ = os.Remove(tmpPath)
		if closeErr1 != nil {
			return fmt.Errorf("close gzip: %w", closeErr1)
		}
		return fmt.Errorf("close file: %w", closeErr2)
	}

	if err := os.Rename(tmpPath, path+".gz"); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename gzip file: %w", err)
	}
	return nil
}

func sanitizeFilename(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "scan"
	}
	return b.String()
}
