package pdfdoc

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const (
	FilterFlate = "FlateDecode"
	FilterDCT   = "DCTDecode"
	FilterCCITT = "CCITTFaxDecode"
)

// Number reads an integer or real object.
func Number(o types.Object) (float64, bool) {
	switch v := o.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

// Int reads an integer-valued entry of d.
func (d *Document) Int(dict types.Dict, key string) (int, bool) {
	v, err := d.Deref(dict[key])
	if err != nil {
		return 0, false
	}
	n, ok := Number(v)
	return int(n), ok
}

// NameOf reads a name entry of d, resolving references.
func (d *Document) NameOf(dict types.Dict, key string) string {
	v, err := d.Deref(dict[key])
	if err != nil {
		return ""
	}
	if n, ok := v.(types.Name); ok {
		return string(n)
	}
	return ""
}

// Bool reads a boolean entry of d.
func (d *Document) Bool(dict types.Dict, key string) bool {
	v, err := d.Deref(dict[key])
	if err != nil {
		return false
	}
	b, _ := v.(types.Boolean)
	return bool(b)
}

func (d *Document) rectangle(o types.Object) ([4]float64, bool) {
	var out [4]float64
	v, err := d.Deref(o)
	if err != nil {
		return out, false
	}
	arr, ok := v.(types.Array)
	if !ok || len(arr) != 4 {
		return out, false
	}
	for i, e := range arr {
		e, err = d.Deref(e)
		if err != nil {
			return out, false
		}
		n, ok := Number(e)
		if !ok {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

// FilterNames lists the stream's filters in decode order.
func (d *Document) FilterNames(sd types.StreamDict) []string {
	if len(sd.FilterPipeline) > 0 {
		out := make([]string, len(sd.FilterPipeline))
		for i, f := range sd.FilterPipeline {
			out[i] = f.Name
		}
		return out
	}
	v, err := d.Deref(sd.Dict["Filter"])
	if err != nil || v == nil {
		return nil
	}
	switch f := v.(type) {
	case types.Name:
		return []string{string(f)}
	case types.Array:
		var out []string
		for _, e := range f {
			if n, ok := e.(types.Name); ok {
				out = append(out, string(n))
			}
		}
		return out
	}
	return nil
}

// StreamContent returns the decoded bytes of a stream.
func StreamContent(sd *types.StreamDict) ([]byte, error) {
	if len(sd.Content) == 0 && len(sd.Raw) > 0 {
		if err := sd.Decode(); err != nil {
			return nil, fmt.Errorf("decode stream: %w", err)
		}
	}
	return sd.Content, nil
}

// NewFlateStream builds a Flate-compressed stream around content.
func NewFlateStream(dict types.Dict, content []byte) (types.StreamDict, error) {
	if dict == nil {
		dict = types.Dict{}
	}
	dict["Filter"] = types.Name(FilterFlate)
	delete(dict, "DecodeParms")
	sd := types.StreamDict{
		Dict:           dict,
		Content:        content,
		FilterPipeline: []types.PDFFilter{{Name: FilterFlate}},
	}
	if err := sd.Encode(); err != nil {
		return sd, fmt.Errorf("encode stream: %w", err)
	}
	setLength(&sd)
	return sd, nil
}

// NewRawStream builds a stream whose bytes are already encoded with filter.
func NewRawStream(dict types.Dict, raw []byte, filter string) types.StreamDict {
	if dict == nil {
		dict = types.Dict{}
	}
	delete(dict, "DecodeParms")
	sd := types.StreamDict{Dict: dict, Raw: raw}
	if filter != "" {
		dict["Filter"] = types.Name(filter)
		sd.FilterPipeline = []types.PDFFilter{{Name: filter}}
	} else {
		delete(dict, "Filter")
		sd.Content = raw
	}
	setLength(&sd)
	return sd
}

func setLength(sd *types.StreamDict) {
	n := int64(len(sd.Raw))
	sd.StreamLength = &n
	sd.Dict["Length"] = types.Integer(n)
}

// AddObject registers a new indirect object and returns its reference.
func (d *Document) AddObject(o types.Object) (types.IndirectRef, error) {
	ref, err := d.ctx.IndRefForNewObject(o)
	if err != nil {
		return types.IndirectRef{}, err
	}
	return *ref, nil
}

// SetObject replaces the object stored under objNr.
func (d *Document) SetObject(objNr int, o types.Object) error {
	entry, ok := d.ctx.Table[objNr]
	if !ok || entry == nil || entry.Free {
		return fmt.Errorf("object %d not found", objNr)
	}
	entry.Object = o
	return nil
}

// Stream resolves o to a stream dictionary and its object number (0 for direct streams).
func (d *Document) Stream(o types.Object) (types.StreamDict, int, bool) {
	objNr := 0
	if ref, ok := o.(types.IndirectRef); ok {
		objNr = int(ref.ObjectNumber)
	}
	v, err := d.Deref(o)
	if err != nil {
		return types.StreamDict{}, 0, false
	}
	sd, ok := v.(types.StreamDict)
	return sd, objNr, ok
}
