package transfer

// ProgressFunc receives a per-file progress snapshot after each chunk
// completion.
type ProgressFunc func(entry ProgressEntry)

// CompleteFunc is invoked once when a file finishes uploading successfully.
type CompleteFunc func(fileName string)

// CallbackExecutor decides how progress callbacks are dispatched relative to
// the scheduler goroutines invoking them.
type CallbackExecutor interface {
	Progress(cb ProgressFunc, entry ProgressEntry)
	Complete(cb CompleteFunc, fileName string)
}

type syncCallbackExecutor struct{}

func (syncCallbackExecutor) Progress(cb ProgressFunc, entry ProgressEntry) {
	if cb != nil {
		cb(entry)
	}
}

func (syncCallbackExecutor) Complete(cb CompleteFunc, fileName string) {
	if cb != nil {
		cb(fileName)
	}
}

// AsyncCallbackExecutor dispatches callbacks on their own goroutine so a slow
// UI handler never stalls chunk dispatch.
type AsyncCallbackExecutor struct {
	logger Logger
}

func NewAsyncCallbackExecutor(logger Logger) *AsyncCallbackExecutor {
	if logger == nil {
		logger = &DefaultLogger{}
	}
	return &AsyncCallbackExecutor{logger: logger}
}

func (e *AsyncCallbackExecutor) Progress(cb ProgressFunc, entry ProgressEntry) {
	if cb == nil {
		return
	}
	go e.guard("progress", func() { cb(entry) })
}

func (e *AsyncCallbackExecutor) Complete(cb CompleteFunc, fileName string) {
	if cb == nil {
		return
	}
	go e.guard("complete", func() { cb(fileName) })
}

func (e *AsyncCallbackExecutor) guard(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Error("async callback panicked", "kind", kind, "panic", r)
		}
	}()
	fn()
}
