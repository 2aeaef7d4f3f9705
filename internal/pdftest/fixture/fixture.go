// Package fixture builds small, valid PDF files for tests.
package fixture

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Image describes an image XObject placed in a page's resources.
type Image struct {
	Width, Height int
	ColorSpace    string // DeviceRGB, DeviceGray, DeviceCMYK
	BPC           int
	Filter        string // "", FlateDecode (Data is compressed here) or DCTDecode (Data is JPEG)
	Data          []byte
	ImageMask     bool
}

// Page describes one page of a fixture document.
type Page struct {
	Width, Height float64    // MediaBox; zero means US Letter
	CropBox       []float64  // optional llx lly urx ury
	Rotate        int
	Content       string     // uncompressed content stream; /F1 is Helvetica
	Images        map[string]Image
	Annotation    bool       // adds a /Text annotation
	Widget        bool       // adds a text field widget (listed when Doc.AcroForm is set)
	Extras        string     // raw entries appended to the page dict
}

// Doc describes a small PDF for tests.
type Doc struct {
	Pages        []Page
	Info         map[string]string
	XMP          bool
	AcroForm     bool
	JavaScript   bool // document-level script, OpenAction script, catalog and page AA
	EmbeddedFile bool
	PieceInfo    bool
}

type objWriter struct {
	objs [][]byte
}

func (w *objWriter) reserve() int {
	w.objs = append(w.objs, nil)
	return len(w.objs)
}

func (w *objWriter) set(n int, body string) { w.objs[n-1] = []byte(body) }

func (w *objWriter) add(body string) int {
	n := w.reserve()
	w.set(n, body)
	return n
}

func (w *objWriter) addStream(dict string, data []byte) int {
	n := w.reserve()
	var b bytes.Buffer
	fmt.Fprintf(&b, "<< %s /Length %d >>\nstream\n", dict, len(data))
	b.Write(data)
	b.WriteString("\nendstream")
	w.objs[n-1] = b.Bytes()
	return n
}

func flate(data []byte) []byte {
	var b bytes.Buffer
	zw := zlib.NewWriter(&b)
	zw.Write(data)
	zw.Close()
	return b.Bytes()
}

func ref(n int) string { return fmt.Sprintf("%d 0 R", n) }

// Build renders the fixture as PDF bytes with an exact cross-reference table.
func (f Doc) Build() []byte {
	w := &objWriter{}
	catalog := w.reserve()
	pages := w.reserve()
	font := w.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var js int
	if f.JavaScript {
		js = w.add(`<< /Type /Action /S /JavaScript /JS (app.alert\(1\);) >>`)
	}

	var kids []string
	var widgets []string
	for _, p := range f.Pages {
		pageNr := w.reserve()
		kids = append(kids, ref(pageNr))

		content := w.addStream("", []byte(p.Content))

		var xobjs []string
		names := make([]string, 0, len(p.Images))
		for name := range p.Images {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			img := p.Images[name]
			dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d", img.Width, img.Height)
			if img.ImageMask {
				dict += " /ImageMask true /BitsPerComponent 1"
			} else {
				cs := img.ColorSpace
				if cs == "" {
					cs = "DeviceRGB"
				}
				bpc := img.BPC
				if bpc == 0 {
					bpc = 8
				}
				dict += fmt.Sprintf(" /ColorSpace /%s /BitsPerComponent %d", cs, bpc)
			}
			data := img.Data
			switch img.Filter {
			case "FlateDecode":
				dict += " /Filter /FlateDecode"
				data = flate(data)
			case "":
			default:
				dict += " /Filter /" + img.Filter
			}
			xobjs = append(xobjs, fmt.Sprintf("/%s %s", name, ref(w.addStream(dict, data))))
		}

		var annots []string
		if p.Annotation {
			annots = append(annots, ref(w.add("<< /Type /Annot /Subtype /Text /Rect [10 10 30 30] /Contents (note) >>")))
		}
		if p.Widget {
			wn := w.add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /T (field%d) /V (secret) /Rect [50 50 200 70] /P %s >>", len(widgets)+1, ref(pageNr)))
			annots = append(annots, ref(wn))
			widgets = append(widgets, ref(wn))
		}

		width, height := p.Width, p.Height
		if width == 0 || height == 0 {
			width, height = 612, 792
		}
		var b strings.Builder
		fmt.Fprintf(&b, "<< /Type /Page /Parent %s /MediaBox [0 0 %s %s]", ref(pages), num(width), num(height))
		if len(p.CropBox) == 4 {
			fmt.Fprintf(&b, " /CropBox [%s %s %s %s]", num(p.CropBox[0]), num(p.CropBox[1]), num(p.CropBox[2]), num(p.CropBox[3]))
		}
		if p.Rotate != 0 {
			fmt.Fprintf(&b, " /Rotate %d", p.Rotate)
		}
		fmt.Fprintf(&b, " /Resources << /Font << /F1 %s >>", ref(font))
		if len(xobjs) > 0 {
			fmt.Fprintf(&b, " /XObject << %s >>", strings.Join(xobjs, " "))
		}
		b.WriteString(" >>")
		fmt.Fprintf(&b, " /Contents %s", ref(content))
		if len(annots) > 0 {
			fmt.Fprintf(&b, " /Annots [%s]", strings.Join(annots, " "))
		}
		if f.JavaScript {
			fmt.Fprintf(&b, " /AA << /O %s >>", ref(js))
		}
		if f.PieceInfo {
			b.WriteString(" /PieceInfo << /Editor << /LastModified (D:20200101000000Z) /Private (x) >> >> /LastModified (D:20200101000000Z)")
		}
		if p.Extras != "" {
			b.WriteString(" " + p.Extras)
		}
		b.WriteString(" >>")
		w.set(pageNr, b.String())
	}
	w.set(pages, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids)))

	var cat strings.Builder
	fmt.Fprintf(&cat, "<< /Type /Catalog /Pages %s", ref(pages))
	var names []string
	if f.JavaScript {
		names = append(names, fmt.Sprintf("/JavaScript << /Names [(doc) %s] >>", ref(js)))
		fmt.Fprintf(&cat, " /OpenAction %s /AA << /WC %s >>", ref(js), ref(js))
	}
	if f.EmbeddedFile {
		ef := w.addStream("/Type /EmbeddedFile", []byte("attached secret"))
		spec := w.add(fmt.Sprintf("<< /Type /Filespec /F (a.txt) /EF << /F %s >> >>", ref(ef)))
		names = append(names, fmt.Sprintf("/EmbeddedFiles << /Names [(a.txt) %s] >>", ref(spec)))
	}
	if len(names) > 0 {
		fmt.Fprintf(&cat, " /Names << %s >>", strings.Join(names, " "))
	}
	if f.XMP {
		xmp := w.addStream("/Type /Metadata /Subtype /XML", []byte(`<?xpacket begin=""?><x:xmpmeta xmlns:x="adobe:ns:meta/"></x:xmpmeta><?xpacket end="w"?>`))
		fmt.Fprintf(&cat, " /Metadata %s", ref(xmp))
	}
	if f.AcroForm {
		fmt.Fprintf(&cat, " /AcroForm << /Fields [%s] >>", strings.Join(widgets, " "))
	}
	if f.PieceInfo {
		cat.WriteString(" /PieceInfo << /Editor << /LastModified (D:20200101000000Z) /Private (x) >> >> /LastModified (D:20200101000000Z)")
	}
	cat.WriteString(" >>")
	w.set(catalog, cat.String())

	var info int
	if len(f.Info) > 0 {
		keys := make([]string, 0, len(f.Info))
		for k := range f.Info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ib strings.Builder
		ib.WriteString("<<")
		for _, k := range keys {
			fmt.Fprintf(&ib, " /%s (%s)", k, f.Info[k])
		}
		ib.WriteString(" >>")
		info = w.add(ib.String())
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(w.objs))
	for i, body := range w.objs {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n", i+1)
		out.Write(body)
		out.WriteString("\nendobj\n")
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(w.objs)+1)
	out.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %s", len(w.objs)+1, ref(catalog))
	if info > 0 {
		fmt.Fprintf(&out, " /Info %s", ref(info))
	}
	fmt.Fprintf(&out, " >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return out.Bytes()
}

// WriteFile builds the fixture into dir/name and returns the path.
func (f Doc) WriteFile(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, f.Build(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// TextPage returns page content showing each line in 12pt Helvetica,
// starting at (72, 700) and moving down 20pt per line.
func TextPage(lines ...string) string {
	var b strings.Builder
	b.WriteString("BT /F1 12 Tf 72 700 Td")
	for i, l := range lines {
		if i > 0 {
			b.WriteString(" 0 -20 Td")
		}
		fmt.Fprintf(&b, " (%s) Tj", l)
	}
	b.WriteString(" ET")
	return b.String()
}

// ImagePage returns content painting the named XObject over the whole Letter page.
func ImagePage(name string) string {
	return fmt.Sprintf("q 612 0 0 792 0 0 cm /%s Do Q", name)
}

func num(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s
}
