package detect

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule types.
const (
	RuleKeyword = "keyword"
	RuleRegex   = "regex"
)

// Rule is one detection pattern.
type Rule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RuleType string `json:"ruleType"`
	Pattern  string `json:"pattern"`
	Enabled  bool   `json:"enabled"`
}

type compiled struct {
	rule Rule
	re   *regexp.Regexp // nil for keywords
}

// compile keeps enabled rules. Keyword patterns are NFKC-normalized like the
// page text; regex patterns that fail to compile are reported and skipped.
func compile(rules []Rule) ([]compiled, []error) {
	var out []compiled
	var errs []error
	for _, r := range rules {
		if !r.Enabled || r.Pattern == "" {
			continue
		}
		switch strings.ToLower(r.RuleType) {
		case RuleRegex:
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
				continue
			}
			out = append(out, compiled{rule: r, re: re})
		default:
			r.Pattern = normalize(r.Pattern)
			out = append(out, compiled{rule: r})
		}
	}
	return out, errs
}

// find returns the byte spans of every match in text that is not glued to
// another digit on either side.
func (c compiled) find(text string) [][2]int {
	var spans [][2]int
	if c.re != nil {
		for _, m := range c.re.FindAllStringIndex(text, -1) {
			if m[1] > m[0] {
				spans = append(spans, [2]int{m[0], m[1]})
			}
		}
	} else {
		for from := 0; from < len(text); {
			i := strings.Index(text[from:], c.rule.Pattern)
			if i < 0 {
				break
			}
			start := from + i
			spans = append(spans, [2]int{start, start + len(c.rule.Pattern)})
			from = start + len(c.rule.Pattern)
		}
	}
	out := spans[:0]
	for _, s := range spans {
		if digitBounded(text, s[0], s[1]) {
			out = append(out, s)
		}
	}
	return out
}

func (c compiled) matches(text string) bool { return len(c.find(text)) > 0 }

// usesDigits reports rules whose pattern looks for digits; OCR lines get a
// second try with separators stripped for them.
func (c compiled) usesDigits() bool {
	return strings.Contains(c.rule.Pattern, `\d`) || strings.Contains(c.rule.Pattern, "[0-9]")
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func digitBounded(text string, start, end int) bool {
	if start > 0 && isDigit(text[start-1]) {
		return false
	}
	if end < len(text) && isDigit(text[end]) {
		return false
	}
	return true
}

// compactAlnum drops everything but ASCII letters and digits.
func compactAlnum(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// MaskSnippet hides the middle of a matched value: short values are fully
// starred, longer ones keep up to four characters on each side.
func MaskSnippet(s string) string {
	rs := []rune(s)
	n := len(rs)
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	visible := n / 3
	if visible > 4 {
		visible = 4
	}
	return string(rs[:visible]) + "****" + string(rs[n-visible:])
}

// Span is a match in plain text, as byte offsets.
type Span struct {
	Start, End int
	RuleID     string
}

// FindInText matches rules against plain text. The text is not normalized,
// so offsets stay valid for the caller's copy.
func FindInText(text string, rules []Rule) ([]Span, error) {
	crs, errs := compile(rules)
	if len(crs) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	var out []Span
	for _, c := range crs {
		for _, s := range c.find(text) {
			out = append(out, Span{Start: s[0], End: s[1], RuleID: c.rule.ID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}
