package log

import (
	"sync"
)

// TestLogger is a Logger implementation that records entries for assertions in tests.
type TestLogger struct {
	mu      sync.Mutex
	level   Level
	fields  Fields
	entries []*Entry
	parent  *TestLogger
}

// NewTestLogger creates a logger that captures entries instead of writing them.
func NewTestLogger() *TestLogger {
	return &TestLogger{
		level:  DebugLevel,
		fields: Fields{},
	}
}

// Entries returns a copy of all captured entries.
func (l *TestLogger) Entries() []*Entry {
	root := l.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	out := make([]*Entry, len(root.entries))
	copy(out, root.entries)
	return out
}

// HasMessage reports whether any captured entry has the given message.
func (l *TestLogger) HasMessage(msg string) bool {
	for _, e := range l.Entries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (l *TestLogger) root() *TestLogger {
	if l.parent != nil {
		return l.parent.root()
	}
	return l
}

func (l *TestLogger) record(level Level, msg string, fields []Field) {
	entryFields := Fields{}
	for k, v := range l.fields {
		entryFields[k] = v
	}
	for _, f := range fields {
		entryFields[f.Key] = f.Value
	}

	root := l.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.entries = append(root.entries, &Entry{
		Level:   level,
		Message: msg,
		Fields:  entryFields,
	})
}

func (l *TestLogger) Debug(msg string, fields ...Field) { l.record(DebugLevel, msg, fields) }
func (l *TestLogger) Info(msg string, fields ...Field)  { l.record(InfoLevel, msg, fields) }
func (l *TestLogger) Warn(msg string, fields ...Field)  { l.record(WarnLevel, msg, fields) }
func (l *TestLogger) Error(msg string, fields ...Field) { l.record(ErrorLevel, msg, fields) }

// Fatal records the entry but does not exit, so tests can assert on it.
func (l *TestLogger) Fatal(msg string, fields ...Field) { l.record(FatalLevel, msg, fields) }

func (l *TestLogger) With(fields ...Field) Logger {
	child := &TestLogger{
		level:  l.level,
		fields: Fields{},
		parent: l,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

func (l *TestLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

func (l *TestLogger) SetLevel(level Level) {
	l.level = level
}

func (l *TestLogger) GetLevel() Level {
	return l.level
}
