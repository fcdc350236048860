package channel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/session"
	"go.uber.org/zap"
)

// CaptureRecord is one line of a capture file.
type CaptureRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	MessageNum int       `json:"message_num"`
	AttemptID  string    `json:"attempt_id"`
	Direction  string    `json:"direction"`
	PayloadLen int       `json:"payload_length"`
	Payload    string    `json:"payload"`
}

// Recorder appends envelopes to a JSONL capture file. A nil Recorder or one
// with an empty directory records nothing.
type Recorder struct {
	dir string

	mu         sync.Mutex
	file       *os.File
	filename   string
	messageNum int
	now        func() time.Time
}

// NewRecorder returns a recorder writing below dir. The file is created on
// the first record.
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir, now: time.Now}
}

// Filename returns the capture file path, or "" before the first record.
func (r *Recorder) Filename() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filename
}

// Observer returns a transport observer that records for one attempt.
func (r *Recorder) Observer(attemptID string) session.Observer {
	if r == nil || r.dir == "" {
		return nil
	}
	return func(dir session.Direction, data []byte) {
		r.Record(attemptID, dir, data)
	}
}

// Record appends one envelope. Failures are logged, never returned.
func (r *Recorder) Record(attemptID string, dir session.Direction, data []byte) {
	if r == nil || r.dir == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			logging.Error("Failed to open capture file",
				zap.String("dir", r.dir),
				zap.Error(err),
			)
			return
		}
	}

	r.messageNum++
	record := CaptureRecord{
		Timestamp:  r.now(),
		MessageNum: r.messageNum,
		AttemptID:  attemptID,
		Direction:  string(dir),
		PayloadLen: len(data),
		Payload:    string(data),
	}

	line, err := json.Marshal(record)
	if err != nil {
		logging.Error("Failed to marshal capture record", zap.Error(err))
		return
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		logging.Error("Failed to write capture record",
			zap.String("filename", r.filename),
			zap.Error(err),
		)
		return
	}

	logging.Debug("Saved envelope to capture file",
		zap.String("filename", r.filename),
		zap.Int("message_num", r.messageNum),
	)
}

func (r *Recorder) open() error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return err
	}
	filename := filepath.Join(r.dir, fmt.Sprintf("capture-%s.jsonl", r.now().Format("20060102-150405")))
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	r.file = f
	r.filename = filename
	return nil
}

// Close closes the capture file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// maxCaptureLine bounds a single capture line when reading.
const maxCaptureLine = 4 * 1024 * 1024

// ReadCapture parses a capture file. Blank lines are ignored.
func ReadCapture(rd io.Reader) ([]CaptureRecord, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), maxCaptureLine)

	var records []CaptureRecord
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var rec CaptureRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return records, fmt.Errorf("capture line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read capture: %w", err)
	}
	return records, nil
}
