package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
)

var _ output.LoggerPort = (*LoggerAdapter)(nil)

// LoggerAdapter writes one JSON object per line. Each process opens its
// own file under ./log/, named after the component and start time.
type LoggerAdapter struct {
	mu     *sync.Mutex
	out    io.Writer
	closer io.Closer
	fields map[string]any
}

// NewLoggerAdapter creates a file-backed logger for the given component
// ("relay", "console", "agent").
func NewLoggerAdapter(component string) (*LoggerAdapter, error) {
	if err := os.MkdirAll("log", 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02_15-04-05"), sanitize(component))
	file, err := os.Create(filepath.Join("log", filename))
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	return &LoggerAdapter{
		mu:     &sync.Mutex{},
		out:    file,
		closer: file,
		fields: map[string]any{"component": component},
	}, nil
}

// NewWriterAdapter logs to an arbitrary writer. Used by tests.
func NewWriterAdapter(w io.Writer) *LoggerAdapter {
	return &LoggerAdapter{
		mu:     &sync.Mutex{},
		out:    w,
		fields: make(map[string]any),
	}
}

func (l *LoggerAdapter) log(level, msg string, args ...any) {
	entry := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"level":     level,
		"message":   msg,
	}

	for k, v := range l.fields {
		entry[k] = v
	}

	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			entry[key] = args[i+1]
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"timestamp":%q,"level":"ERROR","message":"marshal error: %v"}`,
			time.Now().Format(time.RFC3339), err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(data)
	io.WriteString(l.out, "\n")
}

func (l *LoggerAdapter) Debug(msg string, args ...any) { l.log("DEBUG", msg, args...) }
func (l *LoggerAdapter) Info(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *LoggerAdapter) Warn(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *LoggerAdapter) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }

func (l *LoggerAdapter) WithField(key string, value any) output.LoggerPort {
	return l.WithFields(map[string]any{key: value})
}

func (l *LoggerAdapter) WithFields(fields map[string]any) output.LoggerPort {
	newFields := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &LoggerAdapter{
		mu:     l.mu,
		out:    l.out,
		closer: l.closer,
		fields: newFields,
	}
}

func (l *LoggerAdapter) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func sanitize(s string) string {
	result := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result = append(result, r)
		} else {
			result = append(result, '_')
		}
	}
	s = string(result)
	if s == "" {
		return "app"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
