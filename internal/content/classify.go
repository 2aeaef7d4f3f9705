package content

import (
	"encoding/json"
	"fmt"
)

// Class is the dominant kind of content on a page.
type Class int

const (
	ClassEmpty Class = iota
	ClassText
	ClassPathDrawn
	ClassImageBased
	ClassMixed
)

// DefaultPathThreshold is the number of path-construction operators above
// which a page without text is treated as drawn rather than mixed.
const DefaultPathThreshold = 500

var classNames = map[Class]string{
	ClassEmpty:      "empty",
	ClassText:       "text",
	ClassPathDrawn:  "path_drawn",
	ClassImageBased: "image_based",
	ClassMixed:      "mixed",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("class(%d)", int(c))
}

func (c Class) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *Class) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for k, v := range classNames {
		if v == s {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown page content type %q", s)
}

// Counts holds the operator buckets used for classification.
type Counts struct {
	Text  int
	Path  int
	Image int
}

// Count buckets operators: text-show, path construction and XObject paint.
func Count(ops []Op) Counts {
	var c Counts
	for _, op := range ops {
		switch op.Name {
		case "Tj", "TJ", "'", `"`:
			c.Text++
		case "m", "l", "c", "v", "y", "h", "re":
			c.Path++
		case "Do":
			c.Image++
		}
	}
	return c
}

// Classify applies the bucket rules in order; the first match wins.
func Classify(ops []Op, threshold int) Class {
	return classifyCounts(Count(ops), threshold)
}

func classifyCounts(c Counts, threshold int) Class {
	switch {
	case c.Text == 0 && c.Path == 0 && c.Image > 0:
		return ClassImageBased
	case c.Text > 0 && c.Path < threshold:
		return ClassText
	case c.Text == 0 && c.Path > threshold:
		return ClassPathDrawn
	case c.Text > 0 || c.Path > 0 || c.Image > 0:
		return ClassMixed
	}
	return ClassEmpty
}

// ClassifyStream classifies raw content; a stream that cannot be tokenized is Empty.
func ClassifyStream(data []byte, threshold int) Class {
	ops, err := Lex(data)
	if err != nil {
		return ClassEmpty
	}
	return Classify(ops, threshold)
}
