package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir. Each hour gets its own
// zstd frame, so a file is readable once its hour has rolled over or the
// writer is closed.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix, now: time.Now}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// GenEvent records one GenerateRegion call.
type GenEvent struct {
	Kind       string  `json:"kind"`
	Time       uint64  `json:"time"`
	Requested  int     `json:"requested"`
	Sampled    int     `json:"sampled,omitempty"`
	Births     uint64  `json:"births"`
	Deaths     uint64  `json:"deaths"`
	Changes    uint64  `json:"gibbs_changes"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// RegenEvent records one regeneration pass.
type RegenEvent struct {
	Kind    string `json:"kind"`
	Time    uint64 `json:"time"`
	Patches int    `json:"patches"`
	Births  uint64 `json:"births"`
	Deaths  uint64 `json:"deaths"`
	Changes uint64 `json:"gibbs_changes"`
	Expired uint64 `json:"expired"`
}

type SnapshotEvent struct {
	Kind  string `json:"kind"`
	Time  uint64 `json:"time"`
	Path  string `json:"path"`
	Items int    `json:"items"`
}

// GenLogger writes generation, regeneration and snapshot events to
// <worldDir>/events.
type GenLogger struct{ w *JSONLZstdWriter }

func NewGenLogger(worldDir string) *GenLogger {
	return &GenLogger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "events"), "events")}
}

func (l *GenLogger) WriteGen(e GenEvent) error {
	e.Kind = "generate"
	return l.w.Write(e)
}

func (l *GenLogger) WriteRegen(e RegenEvent) error {
	e.Kind = "regenerate"
	return l.w.Write(e)
}

func (l *GenLogger) WriteSnapshot(e SnapshotEvent) error {
	e.Kind = "snapshot"
	return l.w.Write(e)
}

func (l *GenLogger) Close() error { return l.w.Close() }
