// Package logx provides the pooled, level-filtered logger this module
// uses for everything from per-transaction trace lines to quirk
// resolution dumps. It carries no third-party dependency: the stack
// it's modeled on doesn't use one either, so neither does this.
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is a bitmask so a logger can enable several categories at once
// (e.g. Info|TraceUSB) without a strict ordering between them.
type Level uint32

const (
	LevelError Level = 1 << iota
	LevelInfo
	LevelDebug
	LevelTraceUSB
	LevelTraceLink
	LevelTraceJournal
)

// LevelDefault is Error|Info, the quiet default most callers want.
const LevelDefault = LevelError | LevelInfo

// Message is a single buffered log entry. Multi-line entries (a hex
// dump of a container, a quirk table) are built up with Add/Hex calls
// and committed atomically by Logger.Commit, so they never interleave
// with another goroutine's output.
type Message struct {
	level Level
	lines []string
}

func newMessage(level Level) *Message {
	return &Message{level: level}
}

// Add appends one formatted line.
func (m *Message) Add(format string, args ...interface{}) *Message {
	m.lines = append(m.lines, fmt.Sprintf(format, args...))
	return m
}

// Hex appends a multi-line hex dump of data, 16 bytes per line.
func (m *Message) Hex(prefix string, data []byte) *Message {
	for o := 0; o < len(data); o += 16 {
		end := o + 16
		if end > len(data) {
			end = len(data)
		}
		m.lines = append(m.lines, fmt.Sprintf("%s%04x: % x", prefix, o, data[o:end]))
	}
	return m
}

// messagePool recycles Message buffers to avoid an allocation on every
// log call in the common (short) case.
var messagePool = sync.Pool{
	New: func() interface{} { return &Message{lines: make([]string, 0, 4)} },
}

// Logger writes committed Messages to an output, filtered by level,
// with an optional carbon-copy writer (e.g. a console logger
// alongside a rotating file logger).
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	cc     io.Writer
	enable Level
	prefix string
}

// New creates a Logger writing to out, filtering to enable.
func New(out io.Writer, enable Level) *Logger {
	return &Logger{out: out, enable: enable}
}

// WithPrefix returns a derived Logger that prefixes every line (used
// for per-device loggers: "[vid=04a9 pid=3176] ...").
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{out: l.out, cc: l.cc, enable: l.enable, prefix: prefix}
}

// SetCarbonCopy sets a second writer every committed message is also
// sent to, regardless of level filtering against l (cc gets everything
// l would have written, not a separately-filtered stream).
func (l *Logger) SetCarbonCopy(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cc = w
}

// Begin starts a new Message at level; call Add/Hex to build it up,
// then Commit to flush it atomically. A Message begun at a disabled
// level is returned anyway so call sites don't need to branch, but
// Commit is then a no-op.
func (l *Logger) Begin(level Level) *Message {
	m := messagePool.Get().(*Message)
	m.level = level
	m.lines = m.lines[:0]
	return m
}

// Commit writes m's lines atomically (holding the logger's lock for
// the whole write) if its level is enabled, then returns m to the
// pool.
func (l *Logger) Commit(m *Message) {
	defer messagePool.Put(m)

	if m.level&l.enable == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("2006-01-02 15:04:05.000")
	for _, line := range m.lines {
		out := fmt.Sprintf("%s %s%s\n", ts, l.prefix, line)
		io.WriteString(l.out, out)
		if l.cc != nil {
			io.WriteString(l.cc, out)
		}
	}
}

// Errorf is shorthand for Begin(LevelError).Add(...).Commit.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Commit(l.Begin(LevelError).Add(format, args...))
}

// Infof is shorthand for Begin(LevelInfo).Add(...).Commit.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Commit(l.Begin(LevelInfo).Add(format, args...))
}

// Debugf is shorthand for Begin(LevelDebug).Add(...).Commit.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Commit(l.Begin(LevelDebug).Add(format, args...))
}

// Default is a package-level Logger writing to stderr at LevelDefault,
// for call sites that don't carry their own.
var Default = New(os.Stderr, LevelDefault)
