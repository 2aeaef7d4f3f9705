package redact

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/ccitt"
	"golang.org/x/image/draw"

	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/metrics"
	"github.com/local/redactor/internal/pdfdoc"
)

var errUnsupportedImage = errors.New("unsupported image encoding")

// RedactImages paints the masked areas black inside every image XObject
// on page index (0-based) and writes the images back in place. It returns
// the number of images that were repainted. Images that cannot be decoded
// are logged and skipped.
func (r *Redactor) RedactImages(doc *pdfdoc.Document, file string, index int, masks []geom.Mask) (int, error) {
	p, err := doc.Page(index + 1)
	if err != nil {
		return 0, err
	}
	imgs := doc.Images(p)
	if len(imgs) == 0 {
		return 0, nil
	}
	lg := logger(file, index)

	var placements map[string][]geom.Matrix
	if data, err := doc.Content(p); err == nil {
		if placements, err = content.Placements(data); err != nil {
			lg.Debug().Err(err).Msg("content not parseable, assuming full-page images")
		}
	}
	rects := geom.MapMasks(masks, p.Box)

	modified := 0
	for _, im := range imgs {
		regions := imageRegions(placements[im.Name], rects, p.Box)
		if len(regions) == 0 {
			continue
		}
		pix, isJPEG, err := decodeImage(doc, im)
		if err != nil {
			lg.Warn().Err(&ImageDecodeError{File: file, Image: im.Name, Err: err}).Msg("skipping image")
			continue
		}
		b := pix.Bounds()
		painted := false
		for _, m := range regions {
			pr := geom.PixelRect(m, b.Dx(), b.Dy())
			if pr.Empty() {
				continue
			}
			draw.Draw(pix, pr, image.Black, image.Point{}, draw.Src)
			painted = true
		}
		if !painted {
			continue
		}
		sd, err := r.encodeImage(im.Stream.Dict, pix, isJPEG)
		if err != nil {
			return modified, &StreamEncodeError{File: file, Err: fmt.Errorf("image %s: %w", im.Name, err)}
		}
		if err := doc.SetObject(im.ObjNr, sd); err != nil {
			return modified, &StreamEncodeError{File: file, Err: fmt.Errorf("image %s: %w", im.Name, err)}
		}
		modified++
		lg.Info().Str("image", im.Name).Int("width", b.Dx()).Int("height", b.Dy()).Int("regions", len(regions)).Msg("image redacted")
	}
	metrics.AddImages(modified)
	return modified, nil
}

// imageRegions maps user-space rects into the image's normalized pixel
// space (top-left origin) through each placement. Without a known
// placement the image is taken to cover the page box.
func imageRegions(placements []geom.Matrix, rects []geom.Rect, box geom.PageBox) []geom.Mask {
	if len(placements) == 0 {
		placements = []geom.Matrix{{box.Width(), 0, 0, box.Height(), box.LLX, box.LLY}}
	}
	var out []geom.Mask
	for _, m := range placements {
		inv, ok := m.Invert()
		if !ok {
			continue
		}
		for _, r := range rects {
			u := inv.TransformRect(r)
			x0, y0 := math.Max(u.X, 0), math.Max(u.Y, 0)
			x1, y1 := math.Min(u.X+u.W, 1), math.Min(u.Y+u.H, 1)
			if x1 <= x0 || y1 <= y0 {
				continue
			}
			out = append(out, geom.Mask{X: x0, Y: 1 - y1, Width: x1 - x0, Height: y1 - y0})
		}
	}
	return out
}

// components returns the number of color components of a color space.
func components(doc *pdfdoc.Document, cs types.Object) (int, bool) {
	v, err := doc.Deref(cs)
	if err != nil {
		return 0, false
	}
	switch c := v.(type) {
	case types.Name:
		switch c {
		case "DeviceRGB", "CalRGB":
			return 3, true
		case "DeviceGray", "CalGray":
			return 1, true
		case "DeviceCMYK":
			return 4, true
		}
	case types.Array:
		if len(c) == 2 {
			if n, ok := c[0].(types.Name); ok && n == "ICCBased" {
				if sd, _, ok := doc.Stream(c[1]); ok {
					if n, ok := doc.Int(sd.Dict, "N"); ok {
						return n, true
					}
				}
			}
		}
		if len(c) > 0 {
			if n, ok := c[0].(types.Name); ok && (n == "CalRGB" || n == "CalGray") {
				return components(doc, n)
			}
		}
	}
	return 0, false
}

// decodeImage returns the image as RGBA and whether it was a JPEG.
func decodeImage(doc *pdfdoc.Document, im pdfdoc.Image) (*image.RGBA, bool, error) {
	sd := im.Stream
	w, _ := doc.Int(sd.Dict, "Width")
	h, _ := doc.Int(sd.Dict, "Height")
	if w <= 0 || h <= 0 {
		return nil, false, fmt.Errorf("bad dimensions %dx%d", w, h)
	}
	filters := doc.FilterNames(sd)
	last := ""
	if len(filters) > 0 {
		last = filters[len(filters)-1]
	}

	switch last {
	case pdfdoc.FilterDCT:
		if len(filters) != 1 {
			return nil, false, fmt.Errorf("%w: %v", errUnsupportedImage, filters)
		}
		src, err := jpeg.Decode(bytes.NewReader(sd.Raw))
		if err != nil {
			return nil, false, err
		}
		return toRGBA(src), true, nil
	case pdfdoc.FilterCCITT:
		if len(filters) != 1 {
			return nil, false, fmt.Errorf("%w: %v", errUnsupportedImage, filters)
		}
		g, err := decodeCCITT(doc, sd, w, h)
		if err != nil {
			return nil, false, err
		}
		return toRGBA(g), false, nil
	case "JPXDecode", "JBIG2Decode":
		return nil, false, fmt.Errorf("%w: %s", errUnsupportedImage, last)
	}

	bpc, ok := doc.Int(sd.Dict, "BitsPerComponent")
	if !ok {
		bpc = 8
	}
	n, ok := components(doc, sd.Dict["ColorSpace"])
	if !ok || bpc != 8 {
		return nil, false, fmt.Errorf("%w: colorspace with %d components at %d bits", errUnsupportedImage, n, bpc)
	}
	data, err := pdfdoc.StreamContent(&sd)
	if err != nil {
		return nil, false, err
	}
	if len(data) != w*h*n {
		return nil, false, fmt.Errorf("sample length %d, want %d", len(data), w*h*n)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	switch n {
	case 3:
		for i, j := 0, 0; i < len(data); i, j = i+3, j+4 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = data[i], data[i+1], data[i+2], 0xff
		}
	case 1:
		for i, j := 0, 0; i < len(data); i, j = i+1, j+4 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = data[i], data[i], data[i], 0xff
		}
	case 4:
		for i, j := 0, 0; i < len(data); i, j = i+4, j+4 {
			cr, cg, cb := color.CMYKToRGB(data[i], data[i+1], data[i+2], data[i+3])
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = cr, cg, cb, 0xff
		}
	default:
		return nil, false, fmt.Errorf("%w: %d components", errUnsupportedImage, n)
	}
	return img, false, nil
}

func decodeCCITT(doc *pdfdoc.Document, sd types.StreamDict, w, h int) (*image.Gray, error) {
	parms := doc.DerefDict(sd.Dict["DecodeParms"])
	if arr, ok := sd.Dict["DecodeParms"].(types.Array); ok && len(arr) == 1 {
		parms = doc.DerefDict(arr[0])
	}
	k := 0
	opts := &ccitt.Options{}
	if parms != nil {
		k, _ = doc.Int(parms, "K")
		if c, ok := doc.Int(parms, "Columns"); ok && c != w {
			return nil, fmt.Errorf("%w: Columns %d != Width %d", errUnsupportedImage, c, w)
		}
		opts.Invert = doc.Bool(parms, "BlackIs1")
		opts.Align = doc.Bool(parms, "EncodedByteAlign")
	}
	sf := ccitt.Group3
	switch {
	case k < 0:
		sf = ccitt.Group4
	case k > 0:
		return nil, fmt.Errorf("%w: mixed 1D/2D CCITT (K=%d)", errUnsupportedImage, k)
	}
	g := image.NewGray(image.Rect(0, 0, w, h))
	if err := ccitt.DecodeIntoGray(g, bytes.NewReader(sd.Raw), ccitt.MSB, sf, opts); err != nil {
		return nil, err
	}
	return g, nil
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// encodeImage writes pix back with the original dictionary entries, except
// that the result is always 8-bit DeviceRGB without Decode arrays.
func (r *Redactor) encodeImage(orig types.Dict, pix *image.RGBA, asJPEG bool) (types.StreamDict, error) {
	dict := types.Dict{}
	for k, v := range orig {
		dict[k] = v
	}
	dict["ColorSpace"] = types.Name("DeviceRGB")
	dict["BitsPerComponent"] = types.Integer(8)
	delete(dict, "Decode")
	delete(dict, "DecodeParms")

	if asJPEG {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, pix, &jpeg.Options{Quality: r.opts.JPEGQuality}); err != nil {
			return types.StreamDict{}, err
		}
		return pdfdoc.NewRawStream(dict, buf.Bytes(), pdfdoc.FilterDCT), nil
	}

	b := pix.Bounds()
	rgb := make([]byte, 0, b.Dx()*b.Dy()*3)
	for i := 0; i+3 < len(pix.Pix); i += 4 {
		rgb = append(rgb, pix.Pix[i], pix.Pix[i+1], pix.Pix[i+2])
	}
	return pdfdoc.NewFlateStream(dict, rgb)
}
