package subtitles

import (
	"regexp"
	"strings"

	"vidsub/internal/procrun"
	"vidsub/internal/timecode"
)

// cueHeader matches "[HH:MM:SS.mmm --> HH:MM:SS.mmm]". Hours may exceed two digits.
var cueHeader = regexp.MustCompile(`\[(\d{2,}):(\d{2}):(\d{2}\.\d{3}) --> (\d{2,}):(\d{2}):(\d{2}\.\d{3})\]`)

// Cue is a single subtitle entry. Start and End are in SRT form (comma decimal).
type Cue struct {
	Index   int
	Start   string
	End     string
	StartMs int64
	EndMs   int64
	Lines   []string
}

// Text returns the cue text with lines joined by newlines.
func (c Cue) Text() string {
	return strings.Join(c.Lines, "\n")
}

// Batch is what a single chunk produced.
type Batch struct {
	// Cues closed by this chunk, in order.
	Cues []Cue
	// ProgressMs is the start of the first cue header seen in this chunk.
	ProgressMs  int64
	HasProgress bool
}

// TranscriptParser is a single-pass cue parser. The numbering counter starts
// at 1 and survives across chunks; create a new parser for each run.
type TranscriptParser struct {
	lines procrun.LineBuffer
	open  *Cue
	next  int
}

// NewTranscriptParser returns a parser whose first emitted cue is numbered 1.
func NewTranscriptParser() *TranscriptParser {
	return &TranscriptParser{next: 1}
}

// Feed consumes a stdout chunk. An open cue stays open until the next header
// or Flush, since its continuation lines may still arrive.
func (p *TranscriptParser) Feed(chunk []byte) Batch {
	var batch Batch
	for _, line := range p.lines.Feed(chunk) {
		p.consume(line, &batch)
	}
	return batch
}

// Flush ends the stream: any unterminated final line is consumed and the
// open cue, if any, is closed.
func (p *TranscriptParser) Flush() Batch {
	var batch Batch
	if line, ok := p.lines.Flush(); ok {
		p.consume(line, &batch)
	}
	p.closeOpen(&batch)
	return batch
}

// Emitted reports how many cues have been closed so far.
func (p *TranscriptParser) Emitted() int {
	return p.next - 1
}

func (p *TranscriptParser) consume(raw string, batch *Batch) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	m := cueHeader.FindStringSubmatchIndex(line)
	if m == nil {
		if p.open != nil {
			p.open.Lines = append(p.open.Lines, line)
		}
		return
	}

	group := func(i int) string { return line[m[2*i]:m[2*i+1]] }
	startMs, startErr := timecode.ToMillis(group(1), group(2), group(3))
	endMs, endErr := timecode.ToMillis(group(4), group(5), group(6))
	if startErr != nil || endErr != nil {
		// Only an overflowing hour field gets here; keep it as cue text.
		if p.open != nil {
			p.open.Lines = append(p.open.Lines, line)
		}
		return
	}

	if !batch.HasProgress {
		batch.ProgressMs = startMs
		batch.HasProgress = true
	}

	p.closeOpen(batch)
	cue := &Cue{
		Start:   group(1) + ":" + group(2) + ":" + timecode.DotToComma(group(3)),
		End:     group(4) + ":" + group(5) + ":" + timecode.DotToComma(group(6)),
		StartMs: startMs,
		EndMs:   endMs,
	}
	if text := strings.TrimSpace(line[m[1]:]); text != "" {
		cue.Lines = append(cue.Lines, text)
	}
	p.open = cue
}

func (p *TranscriptParser) closeOpen(batch *Batch) {
	if p.open == nil {
		return
	}
	cue := *p.open
	cue.Index = p.next
	p.next++
	p.open = nil
	batch.Cues = append(batch.Cues, cue)
}
