package logging

import (
	"io"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup routes the standard logger to stderr and, when logFile is set, to a rotating file.
// The returned closer flushes and closes the file.
func Setup(logFile string) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if logFile == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}

	w := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    32, // MB
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, w))
	return w
}

// Throttled is a logger that lets through at most one message per interval.
// Suppressed messages are counted and reported with the next one let through.
type Throttled struct {
	prefix  string
	limiter *rate.Limiter
	logf    func(format string, v ...interface{})

	mu         sync.Mutex
	suppressed int
}

// NewThrottled creates a throttled logger writing through the standard logger
func NewThrottled(prefix string, every time.Duration) *Throttled {
	return &Throttled{
		prefix:  prefix,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		logf:    log.Printf,
	}
}

// Printf logs the message unless the rate limit is exhausted
func (t *Throttled) Printf(format string, v ...interface{}) {
	if !t.limiter.Allow() {
		t.mu.Lock()
		t.suppressed++
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	suppressed := t.suppressed
	t.suppressed = 0
	t.mu.Unlock()

	if suppressed > 0 {
		t.logf(t.prefix+format+" (%d similar messages suppressed)", append(v, suppressed)...)
		return
	}
	t.logf(t.prefix+format, v...)
}

// Suppressed returns the number of messages dropped since the last one let through
func (t *Throttled) Suppressed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
