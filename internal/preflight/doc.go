// Package preflight runs the checks that precede a subtitle extraction run:
// the input video is readable and looks like a video, the temp directory is
// writable with enough free space for the waveform, and the external tools
// and model are present.
package preflight
