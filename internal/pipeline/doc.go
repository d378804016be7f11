// Package pipeline drives the subtitle extraction run: a duration probe, audio
// extraction to a mono 16 kHz waveform and transcription into SRT and text
// outputs.
//
// Controller is a small state machine (Idle, ProbingDuration, ExtractingAudio,
// Transcribing, then Completed, Failed or Cancelled) that runs one stage
// process at a time and consumes its event stream on a single goroutine.
// Progress is cumulative: extraction fills 0-50 percent and transcription
// 50-100. Stop kills the active tool, removes the temporary waveform and
// returns the controller to Idle without reporting a failure.
package pipeline
