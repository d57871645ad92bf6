package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandler turns panics in long-running goroutines into logged crash
// reports so one bad packet does not take down the other player.
type CrashHandler struct {
	mu     sync.Mutex
	dir    string
	logger *Logger
	seq    int
}

// DefaultCrashDir returns the platform-specific default crash directory,
// next to the default log file.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(DefaultLogPath()), "crashes")
}

// NewCrashHandler creates a handler writing reports to dir. An empty dir
// only logs.
func NewCrashHandler(dir string, logger *Logger) *CrashHandler {
	if logger == nil {
		logger = Discard()
	}
	return &CrashHandler{dir: dir, logger: logger}
}

// Recover must be deferred directly:
//
//	defer crash.Recover("read loop", map[string]any{"player": "1P"})
//
// It swallows the panic after reporting it.
func (h *CrashHandler) Recover(component string, context map[string]any) {
	if r := recover(); r != nil {
		h.HandlePanic(r, component, context)
	}
}

// HandlePanic records a panic value with the current stack.
func (h *CrashHandler) HandlePanic(value any, component string, context map[string]any) CrashReport {
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", value),
		StackTrace:   string(debug.Stack()),
		Component:    component,
		Context:      context,
	}

	h.logger.Error("recovered panic", "component", component, "panic", report.PanicValue)

	if h.dir != "" {
		if path, err := h.write(report); err != nil {
			h.logger.Warn("write crash report", "error", err)
		} else {
			h.logger.Error("crash report written", "path", path)
		}
	}
	return report
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	h.seq++
	name := fmt.Sprintf("crash-%s-%d.json", report.Timestamp.Format("20060102-150405"), h.seq)
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports returns the stored crash reports, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	if h.dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.Before(reports[j].Timestamp)
	})
	return reports, nil
}

// CleanupOldReports removes reports older than maxAge.
func (h *CrashHandler) CleanupOldReports(maxAge time.Duration) error {
	if h.dir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
