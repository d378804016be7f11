package config

const (
	defaultExtractorBinary   = "ffmpeg"
	defaultTranscriberBinary = "wav2srt"
	defaultModel             = "ggml-base.bin"
	defaultLanguage          = "zh"
	// Biases the transcriber toward simplified Chinese output; without it the
	// model occasionally answers in traditional characters.
	defaultPrompt        = "以下是普通话的句子，这是一段会议记录。"
	defaultLogDir        = "~/.local/share/vidsub/logs"
	defaultStateDir      = "~/.local/share/vidsub"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultServerBind    = "127.0.0.1:7490"
	defaultKillTimeoutMs = 1000
	defaultHistoryLimit  = 500
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Tools: Tools{
			Extractor:   defaultExtractorBinary,
			Transcriber: defaultTranscriberBinary,
		},
		Transcription: Transcription{
			Model:    defaultModel,
			Language: defaultLanguage,
			Prompt:   defaultPrompt,
		},
		Paths: Paths{
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Process: Process{
			KillTimeoutMs: defaultKillTimeoutMs,
		},
		History: History{
			Enabled:  true,
			MaxItems: defaultHistoryLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
	}
}
