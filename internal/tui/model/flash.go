package model

import (
	"strings"
	"sync"
	"time"
)

// Flash holds one transient notification for the status bar.
type Flash struct {
	mu      sync.RWMutex
	message string
	isErr   bool
	expires time.Time
}

// Set stores a flash message that expires after d. Messages mentioning a
// failure are shown as errors.
func (f *Flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.isErr = strings.Contains(strings.ToLower(msg), "fail")
	f.expires = time.Now().Add(d)
}

// Get returns the current message and whether it is an error. The message
// is empty once expired.
func (f *Flash) Get() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return "", false
	}
	return f.message, f.isErr
}
