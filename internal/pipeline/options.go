package pipeline

import (
	"vidsub/internal/config"
	"vidsub/internal/deps"
)

// OptionsFromConfig maps configuration onto controller options, resolving
// each tool next to the vidsub binary first and then on PATH. Runner, Logger
// and Observer are left for the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Tools: Tools{
			Probe:       deps.ResolveOrName(cfg.ProbeBinary()),
			Extractor:   deps.ResolveOrName(cfg.Tools.Extractor),
			Transcriber: deps.ResolveOrName(cfg.Tools.Transcriber),
		},
		Model:       cfg.Transcription.Model,
		Language:    cfg.Transcription.Language,
		Prompt:      cfg.Transcription.Prompt,
		TempDir:     cfg.Paths.TempDir,
		KillTimeout: cfg.KillTimeout(),
	}
}
