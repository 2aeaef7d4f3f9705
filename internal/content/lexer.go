// Package content tokenizes PDF page content streams and replays them with
// enough graphics and text state to locate shown strings on the page.
package content

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind identifies the type of an operand.
type Kind int

const (
	KindNumber Kind = iota
	KindString      // literal (...) string
	KindHex         // <...> string
	KindName
	KindArray
	KindDict
	KindBool
	KindNull
)

// Operand is one value preceding an operator. Start and End delimit its
// exact bytes in the source stream.
type Operand struct {
	Kind  Kind
	Start int
	End   int
	Num   float64
	Bytes []byte    // decoded bytes of string operands
	Name  string    // name without the slash, or the keyword for bool/null
	Elems []Operand // array elements, or alternating dict keys and values
}

// IsString reports whether the operand is a literal or hex string.
func (o Operand) IsString() bool { return o.Kind == KindString || o.Kind == KindHex }

// Op is an operator with its operands.
type Op struct {
	Name     string
	Operands []Operand
	Start    int
	End      int
}

// ErrUnterminated is returned for strings, arrays, dicts or inline images
// that run past the end of the stream.
var ErrUnterminated = errors.New("content: unterminated token")

// Lex splits a content stream into operators. Comments are dropped and
// inline images are returned as a single "BI" operator spanning BI..EI.
func Lex(data []byte) ([]Op, error) {
	l := &lexer{data: data}
	return l.run()
}

type lexer struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhite(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) run() ([]Op, error) {
	var ops []Op
	var operands []Operand
	opStart := -1
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return ops, nil
		}
		start := l.pos
		c := l.data[l.pos]
		if c == ')' || c == '>' || c == ']' || c == '}' || c == '{' {
			// stray closer or PostScript brace; not meaningful in page content
			l.pos++
			continue
		}
		if !isOperandStart(c) {
			word := l.regular()
			switch word {
			case "true", "false":
				if opStart < 0 {
					opStart = start
				}
				operands = append(operands, Operand{Kind: KindBool, Start: start, End: l.pos, Name: word})
				continue
			case "null":
				if opStart < 0 {
					opStart = start
				}
				operands = append(operands, Operand{Kind: KindNull, Start: start, End: l.pos, Name: word})
				continue
			}
			if opStart < 0 {
				opStart = start
			}
			if word == "BI" {
				inline, err := l.inlineImage()
				if err != nil {
					return ops, err
				}
				ops = append(ops, Op{Name: "BI", Operands: inline, Start: opStart, End: l.pos})
			} else {
				ops = append(ops, Op{Name: word, Operands: operands, Start: opStart, End: l.pos})
			}
			operands = nil
			opStart = -1
			continue
		}
		o, err := l.operand()
		if err != nil {
			return ops, err
		}
		if opStart < 0 {
			opStart = o.Start
		}
		operands = append(operands, o)
	}
}

func isOperandStart(c byte) bool {
	switch {
	case c == '(' || c == '<' || c == '[' || c == '/':
		return true
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return true
	}
	return false
}

// regular reads a run of regular characters.
func (l *lexer) regular() string {
	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		// a lone delimiter we do not handle elsewhere
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) operand() (Operand, error) {
	start := l.pos
	c := l.data[l.pos]
	switch {
	case c == '(':
		b, err := l.literal()
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: KindString, Start: start, End: l.pos, Bytes: b}, nil
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			elems, err := l.until('>')
			if err != nil {
				return Operand{}, err
			}
			if l.pos >= len(l.data) || l.data[l.pos] != '>' {
				return Operand{}, ErrUnterminated
			}
			l.pos++
			return Operand{Kind: KindDict, Start: start, End: l.pos, Elems: elems}, nil
		}
		b, err := l.hex()
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: KindHex, Start: start, End: l.pos, Bytes: b}, nil
	case c == '[':
		l.pos++
		elems, err := l.until(']')
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: KindArray, Start: start, End: l.pos, Elems: elems}, nil
	case c == '/':
		l.pos++
		for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
			l.pos++
		}
		return Operand{Kind: KindName, Start: start, End: l.pos, Name: decodeName(l.data[start+1 : l.pos])}, nil
	default:
		word := l.regular()
		n, err := strconv.ParseFloat(word, 64)
		if err != nil {
			// malformed numbers such as "1.2.3" or "--4" read as zero, as most readers do
			n = 0
		}
		return Operand{Kind: KindNumber, Start: start, End: l.pos, Num: n}, nil
	}
}

// until reads operands up to the closing byte. For ']' the closer is consumed;
// for '>' (dict end) the caller consumes the second '>'.
func (l *lexer) until(closer byte) ([]Operand, error) {
	var elems []Operand
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return nil, ErrUnterminated
		}
		c := l.data[l.pos]
		if c == closer {
			l.pos++
			return elems, nil
		}
		if !isOperandStart(c) {
			word := l.regular()
			switch word {
			case "true", "false":
				elems = append(elems, Operand{Kind: KindBool, Name: word})
			case "null":
				elems = append(elems, Operand{Kind: KindNull, Name: word})
			}
			continue
		}
		o, err := l.operand()
		if err != nil {
			return nil, err
		}
		elems = append(elems, o)
	}
}

func (l *lexer) literal() ([]byte, error) {
	l.pos++ // (
	depth := 1
	var out []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
			out = append(out, c)
		case '\\':
			if l.pos >= len(l.data) {
				return nil, ErrUnterminated
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '\r':
			out = append(out, '\n')
			if l.pos < len(l.data) && l.data[l.pos] == '\n' {
				l.pos++
			}
		default:
			out = append(out, c)
		}
	}
	return nil, ErrUnterminated
}

func (l *lexer) hex() ([]byte, error) {
	l.pos++ // <
	var out []byte
	hi := -1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			if hi >= 0 {
				out = append(out, byte(hi<<4))
			}
			return out, nil
		}
		v := hexVal(c)
		if v < 0 {
			continue
		}
		if hi < 0 {
			hi = v
		} else {
			out = append(out, byte(hi<<4|v))
			hi = -1
		}
	}
	return nil, ErrUnterminated
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func decodeName(b []byte) string {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == '#' && i+2 < len(b) && hexVal(b[i+1]) >= 0 && hexVal(b[i+2]) >= 0 {
			out = append(out, byte(hexVal(b[i+1])<<4|hexVal(b[i+2])))
			i += 2
			continue
		}
		out = append(out, b[i])
	}
	return string(out)
}

// inlineImage consumes the dictionary after BI, the ID keyword and the
// binary data up to EI.
func (l *lexer) inlineImage() ([]Operand, error) {
	var dict []Operand
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return nil, ErrUnterminated
		}
		if !isOperandStart(l.data[l.pos]) {
			word := l.regular()
			if word == "ID" {
				break
			}
			continue
		}
		o, err := l.operand()
		if err != nil {
			return nil, err
		}
		dict = append(dict, o)
	}
	// single whitespace byte separates ID from the data
	if l.pos < len(l.data) && isWhite(l.data[l.pos]) {
		l.pos++
	}
	for i := l.pos; i+1 < len(l.data); i++ {
		if l.data[i] != 'E' || l.data[i+1] != 'I' {
			continue
		}
		before := i == l.pos || isWhite(l.data[i-1])
		after := i+2 == len(l.data) || isWhite(l.data[i+2]) || isDelim(l.data[i+2])
		if before && after {
			l.pos = i + 2
			return dict, nil
		}
	}
	return nil, fmt.Errorf("inline image: %w", ErrUnterminated)
}
