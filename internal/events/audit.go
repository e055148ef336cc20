package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/logger"
)

const (
	DefaultMaxLogSize = 64 << 20
	LogFileExtension  = ".jsonl"
	ArchiveDir        = "archive"
)

// AuditPath is where the audit log lives under the state directory.
func AuditPath(stateDir string) string {
	return filepath.Join(stateDir, "logs", "audit"+LogFileExtension)
}

type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	SessionID string         `json:"session_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Worker    string         `json:"worker,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Checksum  string         `json:"checksum,omitempty"`
}

// AuditLogger appends JSONL entries and rotates the file into archive/ once
// it exceeds limit.
type AuditLogger struct {
	mu        sync.Mutex
	file      *os.File
	size      int64
	limit     int64
	logPath   string
	checksums bool
	rotations int
}

func NewAuditLogger(logPath string, limit int64) (*AuditLogger, error) {
	if limit <= 0 {
		limit = DefaultMaxLogSize
	}
	l := &AuditLogger{logPath: logPath, limit: limit}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) open() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return errors.Wrap(err, "failed to stat log file")
	}
	l.file = file
	l.size = stat.Size()
	return nil
}

// Attach writes every event published on bus. The returned func detaches.
func (l *AuditLogger) Attach(bus *Bus) func() {
	return bus.Subscribe(EventAll, func(e Event) {
		if err := l.Record(e); err != nil {
			logger.L.WithError(err).WithField("event", e.Type).Warn("failed to write audit entry")
		}
	})
}

// Record converts an event into a log entry. task_id and worker are lifted
// out of the event data.
func (l *AuditLogger) Record(e Event) error {
	entry := LogEntry{
		Timestamp: e.Timestamp,
		EventType: string(e.Type),
		SessionID: e.SessionID,
		Details:   e.Data,
	}
	if v, ok := e.Data["task_id"].(string); ok {
		entry.TaskID = v
	}
	if v, ok := e.Data["worker"].(string); ok {
		entry.Worker = v
	}
	return l.WriteEntry(&entry)
}

func (l *AuditLogger) WriteEntry(entry *LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("audit logger is closed")
	}
	if l.checksums {
		entry.Checksum = checksum(entry)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal log entry")
	}
	data = append(data, '\n')

	if l.size+int64(len(data)) > l.limit && l.size > 0 {
		if err := l.rotate(); err != nil {
			return errors.Wrap(err, "failed to rotate log")
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return errors.Wrap(err, "failed to write log entry")
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync log file")
	}
	l.size += int64(n)
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close current log file")
	}

	archiveDir := filepath.Join(filepath.Dir(l.logPath), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create archive directory")
	}

	l.rotations++
	base := strings.TrimSuffix(filepath.Base(l.logPath), LogFileExtension)
	archiveName := fmt.Sprintf("%s.%s.%d%s", base, time.Now().Format("20060102_150405"), l.rotations, LogFileExtension)
	if err := os.Rename(l.logPath, filepath.Join(archiveDir, archiveName)); err != nil {
		return errors.Wrap(err, "failed to archive log file")
	}
	return l.open()
}

func (l *AuditLogger) EnableChecksum(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checksums = enable
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	defer func() { l.file = nil }()
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

func (l *AuditLogger) Path() string { return l.logPath }

// ReadLog decodes every entry of a log file, skipping malformed lines, and
// reports how many entries carried a valid checksum or none at all.
func ReadLog(logPath string) ([]LogEntry, int, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to read log file")
	}

	var entries []LogEntry
	valid := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
		if entry.Checksum == "" || entry.Checksum == checksum(&entry) {
			valid++
		}
	}
	return entries, valid, nil
}

func checksum(entry *LogEntry) string {
	c := *entry
	c.Checksum = ""
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", djb2(data))
}

func djb2(data []byte) uint64 {
	var hash uint64 = 5381
	for _, b := range data {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return hash
}
