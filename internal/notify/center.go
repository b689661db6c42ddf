package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

// Notification levels.
const (
	LevelError   = "error"
	LevelInfo    = "info"
	LevelSuccess = "success"
)

// DefaultCapacity is the number of notifications kept.
const DefaultCapacity = 50

// Notification is a non-blocking message surfaced to operators.
type Notification struct {
	ID      string    `json:"id"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Center keeps recent notifications in a ring buffer and logs each one.
type Center struct {
	mu     sync.RWMutex
	buf    []Notification
	next   int
	full   bool
	logger logger.Logger
	now    func() time.Time
}

// NewCenter creates a notification center with the given capacity.
func NewCenter(log logger.Logger, capacity int) *Center {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Center{
		buf:    make([]Notification, capacity),
		logger: log,
		now:    time.Now,
	}
}

// NotifyError records an error notification.
func (c *Center) NotifyError(message string) {
	c.logger.Error("notification", logger.String("message", message))
	c.push(LevelError, message)
}

// NotifyInfo records an informational notification.
func (c *Center) NotifyInfo(message string) {
	c.logger.Info("notification", logger.String("message", message))
	c.push(LevelInfo, message)
}

// NotifySuccess records a success notification.
func (c *Center) NotifySuccess(message string) {
	c.logger.Info("notification", logger.String("message", message))
	c.push(LevelSuccess, message)
}

func (c *Center) push(level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf[c.next] = Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Message: message,
		Time:    c.now(),
	}
	c.next = (c.next + 1) % len(c.buf)
	if c.next == 0 {
		c.full = true
	}
}

// Recent returns the stored notifications, newest first.
func (c *Center) Recent() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := c.next
	if c.full {
		n = len(c.buf)
	}
	out := make([]Notification, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, c.buf[(c.next-i+len(c.buf))%len(c.buf)])
	}
	return out
}
