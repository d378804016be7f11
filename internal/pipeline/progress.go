package pipeline

// Progress is the cumulative bookkeeping for a run. Extraction contributes
// 0-50 percent and transcription 50-100.
type Progress struct {
	TotalMs   int64 `json:"total_ms"`
	CurrentMs int64 `json:"current_ms"`
	Percent   int   `json:"percent"`
}

// Known reports whether the media duration was probed.
func (p Progress) Known() bool {
	return p.TotalMs > 0
}

// extractionPercent maps the extractor clock onto 0-50. With an unknown
// total the previous value is kept.
func extractionPercent(p Progress) int {
	if p.TotalMs <= 0 {
		return p.Percent
	}
	percent := p.CurrentMs * 100 / p.TotalMs / 2
	if percent > 50 {
		percent = 50
	}
	if percent < 0 {
		percent = 0
	}
	return int(percent)
}

// transcriptionPercent maps the transcript clock onto 50-100.
func transcriptionPercent(p Progress) int {
	if p.TotalMs <= 0 {
		if p.Percent < 50 {
			return 50
		}
		return p.Percent
	}
	share := p.CurrentMs * 50 / p.TotalMs
	if share > 50 {
		share = 50
	}
	if share < 0 {
		share = 0
	}
	return 50 + int(share)
}
