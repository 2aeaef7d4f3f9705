// Package pdfdoc wraps a pdfcpu context with the page-level operations the
// redaction strategies need: content streams, image XObjects, page
// replacement and deletion, the Info dictionary and serialization.
package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"
)

// Document is one PDF held in memory together with its original bytes.
type Document struct {
	ctx *model.Context
	src []byte
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Load parses and validates a PDF held in memory.
func Load(data []byte) (*Document, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), newConfig())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	d := &Document{ctx: ctx, src: data}
	if err := api.ValidateContext(ctx); err != nil {
		// relaxed validation still rejects some real-world files; keep going with our own page count
		log.Warn().Err(err).Msg("pdf validation failed, continuing")
		if ctx.PageCount == 0 {
			ctx.PageCount = d.countLeaves()
		}
	}
	if ctx.PageCount == 0 {
		return nil, fmt.Errorf("read pdf: no pages")
	}
	return d, nil
}

// LoadFile reads path and calls Load.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Context exposes the underlying pdfcpu context.
func (d *Document) Context() *model.Context { return d.ctx }

// Source returns the bytes the document was loaded from.
func (d *Document) Source() []byte { return d.src }

// PageCount is the current number of pages.
func (d *Document) PageCount() int { return d.ctx.PageCount }

// Catalog returns the document root dictionary.
func (d *Document) Catalog() (types.Dict, error) {
	if d.ctx.Root == nil {
		return nil, fmt.Errorf("pdf has no catalog")
	}
	return d.ctx.DereferenceDict(*d.ctx.Root)
}

// Info returns the document information dictionary. With create set, an
// empty one is added when the file has none.
func (d *Document) Info(create bool) (types.Dict, error) {
	if d.ctx.Info == nil {
		if !create {
			return nil, nil
		}
		info := types.Dict{}
		ref, err := d.ctx.IndRefForNewObject(info)
		if err != nil {
			return nil, err
		}
		d.ctx.Info = ref
		return info, nil
	}
	return d.ctx.DereferenceDict(*d.ctx.Info)
}

// DropNameTree removes the named tree (JavaScript, EmbeddedFiles, ...) from
// the catalog's Names dictionary and from pdfcpu's name tree cache, which
// is bound back into the catalog on write. It reports whether a tree existed.
func (d *Document) DropNameTree(name string) bool {
	_, cached := d.ctx.Names[name]
	delete(d.ctx.Names, name)
	found := false
	cat, err := d.Catalog()
	if err != nil {
		return cached
	}
	if names := d.DerefDict(cat["Names"]); names != nil {
		if _, ok := names[name]; ok {
			delete(names, name)
			found = true
		}
		// the cache binds its remaining trees into this dictionary on write
		if len(names) == 0 && len(d.ctx.Names) == 0 {
			delete(cat, "Names")
		}
	}
	return found || cached
}

// DropInfo detaches the information dictionary from the trailer.
func (d *Document) DropInfo() { d.ctx.Info = nil }

// Deref resolves indirect references; other objects are returned as is.
func (d *Document) Deref(o types.Object) (types.Object, error) {
	if o == nil {
		return nil, nil
	}
	return d.ctx.Dereference(o)
}

// DerefDict resolves o to a dictionary, or nil when o is not one.
func (d *Document) DerefDict(o types.Object) types.Dict {
	v, err := d.Deref(o)
	if err != nil {
		return nil
	}
	dict, _ := v.(types.Dict)
	return dict
}

// Optimize runs pdfcpu's optimizer (shared resources, compressed streams).
func (d *Document) Optimize() error {
	return api.OptimizeContext(d.ctx)
}

// Write serializes the document.
func (d *Document) Write(w io.Writer) error {
	return api.WriteContext(d.ctx, w)
}

// WriteFile serializes the document to path.
func (d *Document) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Bytes serializes the document into memory.
func (d *Document) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if err := d.Write(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
