// Package procrun launches external tools and turns their output into an
// ordered event stream.
//
// A Handle delivers stdout and stderr chunks as they are read (chunks are not
// line aligned), then exactly one terminal event: Exited with the status code
// or Abnormal for launch failures and killed processes. LineBuffer is the
// shared helper parsers use to reassemble lines across chunk boundaries.
package procrun
