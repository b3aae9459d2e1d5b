package session

import "sync/atomic"

// Kind tells apart the two reasons a save is intercepted.
type Kind int

const (
	// Batch covers the saves of an Edit Stack flush.
	Batch Kind = iota
	// Single covers a save caused by one UI action, such as rewriting
	// the architecture file.
	Single
)

func (k Kind) String() string {
	switch k {
	case Batch:
		return "batch"
	case Single:
		return "single"
	default:
		return "unknown"
	}
}

// Intercept marks saves this process performs itself, so the save listener
// can ignore them. It is a flag, not a counter: one owner at a time.
type Intercept struct {
	batch  atomic.Bool
	single atomic.Bool
}

func (i *Intercept) flag(k Kind) *atomic.Bool {
	if k == Single {
		return &i.single
	}
	return &i.batch
}

func (i *Intercept) Set(k Kind)   { i.flag(k).Store(true) }
func (i *Intercept) Reset(k Kind) { i.flag(k).Store(false) }

// Hold sets the flag and returns the function that resets it. Callers
// defer the reset so every exit path releases the flag:
//
//	defer intercept.Hold(session.Batch)()
func (i *Intercept) Hold(k Kind) func() {
	i.Set(k)
	return func() { i.Reset(k) }
}

// Active reports whether any save is currently intercepted.
func (i *Intercept) Active() bool {
	return i.batch.Load() || i.single.Load()
}

// Clear resets both flags.
func (i *Intercept) Clear() {
	i.batch.Store(false)
	i.single.Store(false)
}
