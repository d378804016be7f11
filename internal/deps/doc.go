// Package deps locates the external tools vidsub drives (the audio extractor,
// the duration probe and the transcriber) and reports whether they are
// available. Tools placed next to the vidsub binary take precedence over PATH.
package deps
