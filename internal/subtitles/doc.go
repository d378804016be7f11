// Package subtitles turns the transcriber's streamed cue lines into subtitle
// records and writes them to the SRT and plain-text outputs.
//
// TranscriptParser consumes raw stdout chunks, reassembles lines across chunk
// boundaries and emits closed cues with sequential numbering owned by the
// parser (one parser per run). Sinks append each batch of cues to their file,
// reopening it in append mode every time. The srt.go helpers inspect finished
// files for the run summary.
package subtitles
