// Package redact holds the redaction strategies and the rules that pick
// between them for a page or a whole file.
package redact

import (
	"encoding/json"
	"fmt"

	"github.com/local/redactor/internal/content"
)

// PageContentType is the classifier's verdict for one page.
type PageContentType = content.Class

// Mode is a requested or effective redaction strategy.
type Mode int

const (
	ModeAuto Mode = iota
	ModeTextReplace
	ModeBlackOverlay
	ModeImage
	ModeSafeRender
)

var modeNames = map[Mode]string{
	ModeAuto:         "auto",
	ModeTextReplace:  "text_replace",
	ModeBlackOverlay: "black_overlay",
	ModeImage:        "image_mode",
	ModeSafeRender:   "safe_render",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the snake_case names; the empty string is Auto.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeAuto, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeAuto, fmt.Errorf("unknown redaction mode %q", s)
}

func (m Mode) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Resolve maps a requested mode onto one page. Explicit modes win; Auto
// follows the page's content type.
func Resolve(requested Mode, class PageContentType) Mode {
	if requested != ModeAuto {
		return requested
	}
	switch class {
	case content.ClassText:
		return ModeTextReplace
	case content.ClassImageBased:
		return ModeImage
	case content.ClassPathDrawn, content.ClassMixed:
		return ModeSafeRender
	default:
		return ModeBlackOverlay
	}
}

// ResolveFile decides whether the whole file is flattened. classes are the
// types of the masked pages. It returns ModeSafeRender, or the requested
// mode when pages are handled one by one.
func ResolveFile(requested Mode, classes []PageContentType) Mode {
	if requested != ModeAuto {
		return requested
	}
	for _, c := range classes {
		if c == content.ClassPathDrawn || c == content.ClassMixed {
			return ModeSafeRender
		}
	}
	return ModeAuto
}

// Recommend suggests a mode for a document from all of its page types.
func Recommend(classes []PageContentType) Mode {
	if len(classes) == 0 {
		return ModeAuto
	}
	allText := true
	var hasImage, hasDrawn bool
	for _, c := range classes {
		switch c {
		case content.ClassText, content.ClassEmpty:
		case content.ClassImageBased:
			allText, hasImage = false, true
		default:
			allText, hasDrawn = false, true
		}
	}
	switch {
	case allText:
		return ModeTextReplace
	case hasImage:
		return ModeImage
	case hasDrawn:
		return ModeSafeRender
	}
	return ModeAuto
}
