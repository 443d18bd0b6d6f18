package chatexec

import "sync"

// CompletionHook is the single teardown trigger for a streaming chat
// request. It fires exactly once across every terminating path (normal
// end-of-stream, caller abort, stream error, and the handler's defensive
// defer); any firing after the first is a no-op.
type CompletionHook struct {
	once sync.Once
	fn   func()
}

// NewCompletionHook wraps fn so it runs at most once.
func NewCompletionHook(fn func()) *CompletionHook {
	return &CompletionHook{fn: fn}
}

// Fire runs the hook if it has not already run.
func (h *CompletionHook) Fire() {
	h.once.Do(func() {
		if h.fn != nil {
			h.fn()
		}
	})
}
