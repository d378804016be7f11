// Package main hosts the vidsub CLI entrypoint and command graph.
//
// `vidsub extract` runs the subtitle pipeline in the foreground with a
// progress bar. `vidsub serve` keeps a controller alive behind the HTTP API
// (optionally watching a directory), and `vidsub stop` / `vidsub status` talk
// to it. The remaining commands inspect run history, external tools,
// configuration and saved settings.
//
// Keep this package lean: behaviour belongs in the internal packages, the
// commands here only wire them together and render results.
package main
