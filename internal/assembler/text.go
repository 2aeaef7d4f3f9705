package assembler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/detect"
	"github.com/local/redactor/internal/verify"
)

// Block replaces every redacted rune in text outputs.
const Block = '█'

type textFormat struct{ a *Assembler }

func (textFormat) Name() string { return "text" }

// Process redacts rule matches in a plain text file. Masks and page actions
// have no meaning for text and are ignored.
func (f textFormat) Process(ctx context.Context, j *Job) (FileReport, error) {
	rep := FileReport{Strategy: "text_replace"}
	if !utf8.Valid(j.Data) {
		return rep, fmt.Errorf("text input is not valid UTF-8")
	}
	if len(j.Req.MasksByPage) > 0 || len(j.Req.Pages) > 0 {
		rep.Warnings = append(rep.Warnings, "masks and page actions do not apply to text files")
	}
	text := string(j.Data)
	spans, err := detect.FindInText(text, j.Batch.Rules)
	if err != nil {
		return rep, fmt.Errorf("detect: %w", err)
	}
	rep.Detected = len(spans)

	var terms []string
	for _, s := range spans {
		terms = append(terms, text[s.Start:s.End])
	}
	out := blockOut(text, spans)

	ext := filepath.Ext(j.Name)
	if ext == "" {
		ext = ".txt"
	}
	rep.Output, err = f.a.deps.Store.Save(ctx, j.Batch.OutputDirectory, j.outputName(ext), []byte(out), "text/plain; charset=utf-8")
	if err != nil {
		return rep, err
	}
	if j.Batch.Verify.TextSearch {
		res := verify.Result{OK: true, Checked: []string{"text_search"}}
		for _, t := range verify.Terms(terms) {
			if strings.Contains(out, t) {
				res.OK = false
				res.Warnings = append(res.Warnings, fmt.Sprintf("text output still contains redacted text %q", t))
			}
		}
		rep.Verification = &res
		rep.Warnings = append(rep.Warnings, res.Warnings...)
	}
	log.Info().Str("file", j.Name).Int("hits", len(spans)).Str("output", rep.Output).Msg("text redacted")
	return rep, nil
}

// blockOut replaces each rune inside spans with Block. Spans may overlap.
func blockOut(text string, spans []detect.Span) string {
	hidden := make([]bool, len(text))
	for _, s := range spans {
		for i := s.Start; i < s.End && i < len(text); i++ {
			hidden[i] = true
		}
	}
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range text {
		if hidden[i] && r != '\n' {
			b.WriteRune(Block)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
