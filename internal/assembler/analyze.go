package assembler

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/mupdf"
	"github.com/local/redactor/internal/pdfdoc"
	"github.com/local/redactor/internal/redact"
)

// Analyze classifies every page and reports which kinds of hidden content
// the document carries.
func (a *Assembler) Analyze(ctx context.Context, ref string) (Analysis, error) {
	var an Analysis
	doc, err := a.load(ctx, ref)
	if err != nil {
		return an, err
	}
	an.PageTypes = make([]content.Class, 0, doc.PageCount())
	for i := 0; i < doc.PageCount(); i++ {
		c, err := a.deps.Redactor.Classify(doc, i)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("classify failed")
		}
		an.PageTypes = append(an.PageTypes, c)
	}
	an.RecommendedMode = redact.Recommend(an.PageTypes)

	cat, err := doc.Catalog()
	if err != nil {
		return an, err
	}
	_, an.HasForms = cat["AcroForm"]
	if info, _ := doc.Info(false); len(info) > 0 {
		an.HasMetadata = true
		v, _ := doc.InfoString("Redacted")
		an.AlreadyRedacted = v == "true"
	}
	if _, ok := cat["Metadata"]; ok {
		an.HasMetadata = true
	}
	if names := doc.DerefDict(cat["Names"]); names != nil {
		_, an.HasAttachments = names["EmbeddedFiles"]
		_, an.HasJavaScript = names["JavaScript"]
	}
	an.HasAnnotations = hasAnnotations(doc)

	if a.deps.Extractor != nil {
		diag, err := a.deps.Extractor.Probe(ctx, doc.Source(), mupdf.DefaultThreshold, nil)
		if err != nil {
			log.Debug().Err(err).Msg("text probe unavailable")
		} else {
			ok := diag.HasExtractableText
			an.HasExtractableText = &ok
		}
	}
	return an, nil
}

func hasAnnotations(doc *pdfdoc.Document) bool {
	pages, err := doc.Pages()
	if err != nil {
		return false
	}
	for _, p := range pages {
		if arr, ok := doc.DerefArray(p.Dict["Annots"]); ok && len(arr) > 0 {
			return true
		}
	}
	return false
}
