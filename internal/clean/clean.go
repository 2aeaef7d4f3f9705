// Package clean strips metadata, scripts, attachments, forms and
// annotations from a document before it is written out.
package clean

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/metrics"
	"github.com/local/redactor/internal/pdfdoc"
)

// Options selects the cleaners to run. All default to off.
type Options struct {
	DocumentInfo bool `json:"document_info"`
	XMPMetadata  bool `json:"xmp_metadata"`
	HiddenData   bool `json:"hidden_data"`
	Annotations  bool `json:"annotations"`
	Forms        bool `json:"forms"`
	Attachments  bool `json:"attachments"`
	JavaScript   bool `json:"javascript"`
}

// Any reports whether at least one cleaner is enabled.
func (o Options) Any() bool {
	return o.DocumentInfo || o.XMPMetadata || o.HiddenData || o.Annotations || o.Forms || o.Attachments || o.JavaScript
}

// Result describes what one cleaner removed.
type Result struct {
	Cleaner      string   `json:"cleaner"`
	ItemsRemoved int      `json:"items_removed"`
	Details      []string `json:"details,omitempty"`
}

func (r *Result) add(format string, args ...any) {
	r.ItemsRemoved++
	r.Details = append(r.Details, fmt.Sprintf(format, args...))
}

type cleaner struct {
	name    string
	enabled func(Options) bool
	run     func(*pdfdoc.Document) (Result, error)
}

// order matters: forms go before annotations so widget removal is reported as forms.
var cleaners = []cleaner{
	{"document_info", func(o Options) bool { return o.DocumentInfo }, DocumentInfo},
	{"xmp_metadata", func(o Options) bool { return o.XMPMetadata }, XMPMetadata},
	{"hidden_data", func(o Options) bool { return o.HiddenData }, HiddenData},
	{"javascript", func(o Options) bool { return o.JavaScript }, JavaScript},
	{"attachments", func(o Options) bool { return o.Attachments }, Attachments},
	{"forms", func(o Options) bool { return o.Forms }, Forms},
	{"annotations", func(o Options) bool { return o.Annotations }, Annotations},
}

// Apply runs the enabled cleaners in a fixed order. A failing cleaner is
// logged and reported; the others still run.
func Apply(doc *pdfdoc.Document, opts Options) ([]Result, []error) {
	var results []Result
	var errs []error
	for _, c := range cleaners {
		if !c.enabled(opts) {
			continue
		}
		res, err := c.run(doc)
		res.Cleaner = c.name
		if err != nil {
			log.Warn().Err(err).Str("cleaner", c.name).Msg("cleaner failed")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		metrics.AddCleaned(c.name, res.ItemsRemoved)
		log.Debug().Str("cleaner", c.name).Int("removed", res.ItemsRemoved).Msg("cleaned")
		results = append(results, res)
	}
	return results, errs
}
