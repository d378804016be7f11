// Package watch feeds video files dropped into a directory to the pipeline
// controller, one run at a time.
//
// The watcher prefers fsnotify and falls back to periodic directory scans when
// the platform watcher is unavailable or stops delivering events. A file is
// queued only after its size and modification time have been stable for the
// settle delay, so partially copied videos are not picked up.
package watch
