//go:build femdebug

package utils

// Debug is true when built with the femdebug tag; assertions are live.
const Debug = true

// Assert panics with an InternalError when cond is false.
func Assert(cond bool, object, format string, a ...interface{}) {
	if !cond {
		InternalErrorf(object, format, a...)
	}
}
