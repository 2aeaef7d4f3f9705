package pdfdoc

import (
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Provenance identifies the tool that produced a redacted file.
type Provenance struct {
	Name    string
	Version string
	URL     string
	At      time.Time
}

// Producer renders "Name vVersion (URL)".
func (p Provenance) Producer() string {
	return fmt.Sprintf("%s v%s (%s)", p.Name, p.Version, p.URL)
}

// PDFDate formats t as a PDF date string, D:YYYYMMDDHHmmSS+hhmm.
func PDFDate(t time.Time) string {
	return t.Format("D:20060102150405-0700")
}

// StampProvenance records the redaction in the Info dictionary, creating it if needed.
func (d *Document) StampProvenance(p Provenance) error {
	info, err := d.Info(true)
	if err != nil {
		return fmt.Errorf("info dict: %w", err)
	}
	if p.At.IsZero() {
		p.At = time.Now()
	}
	date := PDFDate(p.At)
	producer := p.Producer()
	info["Producer"] = types.StringLiteral(producer)
	info["Creator"] = types.StringLiteral(p.Name)
	info["ModDate"] = types.StringLiteral(date)
	info["Redacted"] = types.StringLiteral("true")
	info["RedactedBy"] = types.StringLiteral(producer)
	info["RedactedAt"] = types.StringLiteral(date)
	return nil
}

// InfoString reads a text entry of the Info dictionary.
func (d *Document) InfoString(key string) (string, bool) {
	info, err := d.Info(false)
	if err != nil || info == nil {
		return "", false
	}
	v, err := d.Deref(info[key])
	if err != nil {
		return "", false
	}
	switch s := v.(type) {
	case types.StringLiteral:
		return string(s), true
	case types.HexLiteral:
		return string(s), true
	}
	return "", false
}
