// Package logutil wires the process logger: a colored prefixed console
// output plus a persistent daily-rotated file under .log/, seven days
// retained.
package logutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// keepDays is the file retention window.
const keepDays = 7

// Setup configures the console logger level and format.
func Setup(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(parsed)
	formatter := new(prefixed.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)
	return nil
}

var _ = logrus.Hook(&writerHook{})

// writerHook forwards every entry to the rotating file logger.
type writerHook struct {
	logger *logrus.Logger
}

func (hook *writerHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	hook.logger.Println(strings.TrimSuffix(line, "\n"))
	return nil
}

func (hook *writerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// RotatingWriter appends to {name}.log in dir and rotates it on day
// change, pruning dated files older than the retention window.
type RotatingWriter struct {
	mu   sync.Mutex
	dir  string
	name string
	day  string
	file *os.File
}

// NewRotatingWriter opens the active log file, creating dir as needed.
func NewRotatingWriter(dir, name string) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	w := &RotatingWriter{dir: dir, name: name, day: today()}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func today() string { return time.Now().Format("2006-01-02") }

func (w *RotatingWriter) path() string {
	return filepath.Join(w.dir, w.name+".log")
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.file = file
	return nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if day := today(); day != w.day {
		w.rotate(day)
	}
	return w.file.Write(p)
}

// Close releases the active file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// rotate stamps the active file with the finished day and prunes the
// retention window. Caller holds the mutex.
func (w *RotatingWriter) rotate(day string) {
	w.file.Close()
	os.Rename(w.path(), w.path()+"."+w.day)
	w.day = day
	if err := w.open(); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		return
	}
	w.prune()
}

func (w *RotatingWriter) prune() {
	pattern := filepath.Join(w.dir, w.name+".log.*")
	dated, err := filepath.Glob(pattern)
	if err != nil || len(dated) <= keepDays {
		return
	}
	// dated suffixes sort chronologically
	sort.Strings(dated)
	for _, stale := range dated[:len(dated)-keepDays] {
		os.Remove(stale)
	}
}

// ConfigurePersistentLogging mirrors every console entry into the
// daily-rotated .log/{database}.log file.
func ConfigurePersistentLogging(datadir, database string) (*RotatingWriter, error) {
	writer, err := NewRotatingWriter(filepath.Join(datadir, ".log"), database)
	if err != nil {
		return nil, err
	}
	formatter := new(prefixed.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	formatter.DisableColors = true

	fileLogger := logrus.New()
	fileLogger.SetLevel(logrus.TraceLevel)
	fileLogger.SetOutput(writer)
	fileLogger.SetFormatter(formatter)

	logrus.AddHook(&writerHook{logger: fileLogger})
	return writer, nil
}
