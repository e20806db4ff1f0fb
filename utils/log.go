package utils

import "log"

// Verbose gates progress lines; the command line sets it from --verbose.
var Verbose = false

func Logf(format string, a ...interface{}) {
	if Verbose {
		log.Printf(format, a...)
	}
}
