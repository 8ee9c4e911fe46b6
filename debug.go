package rhi

import "sync/atomic"

var debugBreakPtr atomic.Pointer[func(msg string)]

// SetDebugBreakHandler installs the function called when a backend detects a
// caller ordering bug, such as binding a shader resource before any pipeline
// state is set. The default handler does nothing; development builds can
// install one that panics or stops in a debugger. Pass nil to restore the
// default.
func SetDebugBreakHandler(fn func(msg string)) {
	if fn == nil {
		debugBreakPtr.Store(nil)
		return
	}
	debugBreakPtr.Store(&fn)
}

// DebugBreak invokes the installed debug break handler, if any.
func DebugBreak(msg string) {
	if fn := debugBreakPtr.Load(); fn != nil {
		(*fn)(msg)
	}
}
