package limiter

import (
    "context"
    "sync"
)

// Gate bounds how many callers may use a native backend at once.
// MuPDF and Tesseract keep process-wide state, so the default capacity is 1.
type Gate struct {
    slots chan struct{}
}

// NewGate returns a gate with the given capacity (at least 1).
func NewGate(capacity int) *Gate {
    if capacity <= 0 { capacity = 1 }
    return &Gate{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is done.
// The returned release function must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
    select {
    case g.slots <- struct{}{}:
        var once sync.Once
        return func() { once.Do(func() { <-g.slots }) }, nil
    case <-ctx.Done():
        return nil, ctx.Err()
    }
}

var (
    nativeOnce sync.Once
    native     *Gate
)

// Native is the process-wide gate shared by the render and OCR backends.
func Native() *Gate {
    nativeOnce.Do(func() { native = NewGate(1) })
    return native
}
