package utils

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

// FatalKind separates problems a user can fix through configuration from
// problems that need a code dive.
type FatalKind uint8

const (
	ConfigError   FatalKind = iota // Ill-posed input, missing setup
	InternalError                  // Broken invariant inside the library
	CommError                      // Out of phase or inconsistent exchange between ranks
)

func (k FatalKind) String() string {
	switch k {
	case ConfigError:
		return "configuration error"
	case InternalError:
		return "internal error"
	case CommError:
		return "communication error"
	}
	return fmt.Sprintf("FatalKind(%d)", int(k))
}

// FatalError is the only value ever panicked by this module. Nothing inside
// the module swallows it; the command line recovers it in ExitOnFatal.
type FatalError struct {
	Kind   FatalKind
	Object string // Name of the object at fault, may be empty
	Msg    string
}

func (e *FatalError) Error() string {
	if len(e.Object) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s in %q: %s", e.Kind, e.Object, e.Msg)
}

// Fatal reports an unrecoverable condition. It never returns.
func Fatal(kind FatalKind, object, format string, a ...interface{}) {
	panic(&FatalError{
		Kind:   kind,
		Object: object,
		Msg:    fmt.Sprintf(format, a...),
	})
}

// ConfigErrorf is used when the error is something a user could reasonably be
// expected to fix through changes in the problem setup.
func ConfigErrorf(object, format string, a ...interface{}) {
	Fatal(ConfigError, object, format, a...)
}

// InternalErrorf is used when the error requires a code dive to fix.
func InternalErrorf(object, format string, a ...interface{}) {
	Fatal(InternalError, object, format, a...)
}

// CommErrorf reports a broken assumption in a rank-to-rank exchange.
func CommErrorf(object, format string, a ...interface{}) {
	Fatal(CommError, object, format, a...)
}

// AsFatal extracts a *FatalError from a recovered panic value.
func AsFatal(r interface{}) (fe *FatalError, ok bool) {
	var err error
	if err, ok = r.(error); !ok {
		return nil, false
	}
	ok = errors.As(err, &fe)
	return
}

// ExitOnFatal must be deferred at the top of main. It prints the single
// diagnostic for a FatalError and exits; any other panic is re-raised.
func ExitOnFatal() {
	r := recover()
	if r == nil {
		return
	}
	fe, ok := AsFatal(r)
	if !ok {
		panic(r)
	}
	log.Printf("femcore exited early with the following %s", fe.Error())
	if fe.Kind == InternalError {
		debug.PrintStack()
	}
	os.Exit(1)
}

// CatchFatal runs f and returns the FatalError it raised, or nil. Other
// panics pass through.
func CatchFatal(f func()) (fe *FatalError) {
	defer func() {
		if r := recover(); r != nil {
			var ok bool
			if fe, ok = AsFatal(r); !ok {
				panic(r)
			}
		}
	}()
	f()
	return
}
