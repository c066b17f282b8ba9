// Package steplog persists one JSONL record per agent decision step,
// zstd-compressed and rotated hourly. The JSONL stream is the source of
// truth; the sqlite index is derived from it and may drop under load.
package steplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Record kinds.
const (
	KindStep      = "step"
	KindSuspicion = "suspicion"
)

// Record is one line of the step log. Step records describe a decision
// cycle; suspicion records describe a defensive response. Unused fields
// stay empty for the other kind.
type Record struct {
	Kind  string `json:"kind"`
	RunID string `json:"run_id"`
	Agent string `json:"agent"`
	Seq   uint64 `json:"seq,omitempty"`
	TS    int64  `json:"ts"` // unix millis

	State        string          `json:"state,omitempty"`
	TaskID       string          `json:"task_id,omitempty"`
	PromptDigest string          `json:"prompt_digest,omitempty"`
	Decision     json.RawMessage `json:"decision,omitempty"`
	Outcome      string          `json:"outcome,omitempty"`
	Err          string          `json:"err,omitempty"`
	LatencyMS    int64           `json:"latency_ms,omitempty"`

	Level    string `json:"level,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Line     string `json:"line,omitempty"`
}

const filePrefix = "steps"

// Writer appends records to hourly zstd-compressed JSONL files.
type Writer struct {
	dir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(pathForHour(w.dir, hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err
}

func pathForHour(dir, hour string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl.zst", filePrefix, hour))
}

// Files lists the step log files under dir, oldest first.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadFile decodes every record in one rotated file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer dec.Close()

	var out []Record
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%s: bad record: %w", path, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
