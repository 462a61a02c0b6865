package jobs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Job log files, relative to the log directory.
const (
	HeartbeatLog       = "crm_heartbeat_log.txt"
	LowStockLog        = "low_stock_updates_log.txt"
	ReportLog          = "crm_report_log.txt"
	CeleryTestLog      = "celery_test_log.txt"
	OrderRemindersLog  = "order_reminders_log.txt"
	CustomerCleanupLog = "customer_cleanup_log.txt"
)

// LogDir appends to the plain-text job logs. Writers to the same file are
// serialized within the process.
type LogDir struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLogDir(dir string) *LogDir {
	return &LogDir{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// Path returns the absolute location of a job log.
func (l *LogDir) Path(name string) string {
	return filepath.Join(l.dir, name)
}

func (l *LogDir) lock(name string) func() {
	l.mu.Lock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Append writes text to the end of the named log, creating it if needed.
func (l *LogDir) Append(name, text string) error {
	unlock := l.lock(name)
	defer unlock()

	f, err := os.OpenFile(l.Path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", name, err)
	}
	return f.Close()
}

// Trim keeps the last keep lines of the named log. A missing file is not an
// error and reports zero lines.
func (l *LogDir) Trim(name string, keep int) (before, after int, err error) {
	unlock := l.lock(name)
	defer unlock()

	path := l.Path(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", name, err)
	}

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		return 0, 0, fmt.Errorf("scan %s: %w", name, err)
	}

	before = len(lines)
	if before <= keep {
		return before, before, nil
	}

	var buf bytes.Buffer
	for _, line := range lines[before-keep:] {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return before, before, fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return before, before, fmt.Errorf("replace %s: %w", name, err)
	}
	return before, keep, nil
}
