// Package api exposes the pipeline controller over HTTP.
//
// The router is built on gin and serves JSON under /api: start and stop runs,
// read the controller status, list run history and check external tools.
// /api/events upgrades to a websocket that streams status, progress, output
// and completion events as they happen. Client is the matching HTTP client
// used by the CLI.
package api
