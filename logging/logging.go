// Package logging is a direct Go translation of the original tool's
// Logging:: namespace (original_source/src/cli/main.cpp): a handful
// of stderr-writing helpers for plain messages and a single-line
// progress counter. No third-party structured-logging library is
// wired here — nothing else in the retrieved pack reaches for one
// either, so stdlib log.Logger is the corpus-idiomatic choice.
package logging

import (
	"fmt"
	"log"
	"os"
)

var std = log.New(os.Stderr, "", 0)

// Printf writes one formatted line, mirroring Logging::println.
func Printf(format string, args ...any) {
	std.Printf(format, args...)
}

// progressLabel and progressTotal track the single in-flight progress
// bar; the original only ever drives one at a time (startProgress is
// never called while another is open).
var (
	progressLabel string
	progressTotal int
)

// StartProgress announces the start of a counted operation.
func StartProgress(label string) {
	progressLabel = label
	progressTotal = 0
	fmt.Fprintf(os.Stderr, "%s...\n", label)
}

// UpdateProgress reports current/total progress on the operation
// StartProgress announced, overwriting the previous line.
func UpdateProgress(current, total int) {
	progressTotal = total
	fmt.Fprintf(os.Stderr, "\r%s: %d/%d", progressLabel, current, total)
}

// EndProgress closes out the progress line StartProgress opened.
func EndProgress() {
	if progressTotal > 0 {
		fmt.Fprintf(os.Stderr, "\r%s: %d/%d done\n", progressLabel, progressTotal, progressTotal)
	} else {
		fmt.Fprintf(os.Stderr, "%s: done\n", progressLabel)
	}
	progressLabel = ""
	progressTotal = 0
}
