package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Document wraps a parsed PDF and exposes page geometry, decoded content
// streams and the interactive form tree.
type Document struct {
	ctx  *model.Context
	file *os.File
	path string
	dims []types.Dim
}

// Open parses the PDF at path. Validation is relaxed so documents produced
// by scanners and office exporters still load.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		f.Close()
		return nil, fmt.Errorf("resolving page tree of %s: %w", path, err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading page dimensions of %s: %w", path, err)
	}

	return &Document{ctx: ctx, file: f, path: path, dims: dims}, nil
}

// Close releases the underlying file handle.
func (d *Document) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Path returns the path the document was opened from.
func (d *Document) Path() string { return d.path }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.ctx.PageCount }

// PageSize returns the dimensions of a zero-based page in PDF points.
func (d *Document) PageSize(pageIndex int) (width, height float64, err error) {
	if pageIndex < 0 || pageIndex >= len(d.dims) {
		return 0, 0, fmt.Errorf("page %d out of range, document has %d pages", pageIndex, len(d.dims))
	}
	return d.dims[pageIndex].Width, d.dims[pageIndex].Height, nil
}

// Catalog returns the document catalog dictionary.
func (d *Document) Catalog() (types.Dict, error) {
	return d.ctx.Catalog()
}

// HasAcroForm reports whether the catalog carries an interactive form
// dictionary with at least one field.
func (d *Document) HasAcroForm() bool {
	catalog, err := d.ctx.Catalog()
	if err != nil || catalog == nil {
		return false
	}
	obj, found := catalog.Find("AcroForm")
	if !found {
		return false
	}
	form, err := d.ctx.DereferenceDict(obj)
	if err != nil || form == nil {
		return false
	}
	fieldsObj, found := form.Find("Fields")
	if !found {
		return false
	}
	fields, err := d.ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return false
	}
	return len(fields) > 0
}

// pageDict returns the dictionary and inherited resources of a zero-based page.
func (d *Document) pageDict(pageIndex int) (types.Dict, types.Dict, error) {
	pd, _, inhPAttrs, err := d.ctx.PageDict(pageIndex+1, false)
	if err != nil {
		return nil, nil, fmt.Errorf("page %d dict: %w", pageIndex, err)
	}
	if pd == nil {
		return nil, nil, fmt.Errorf("page %d has no dictionary", pageIndex)
	}
	var res types.Dict
	if obj, found := pd.Find("Resources"); found {
		if rd, err := d.ctx.DereferenceDict(obj); err == nil && rd != nil {
			res = rd
		}
	}
	if res == nil && inhPAttrs != nil {
		res = inhPAttrs.Resources
	}
	return pd, res, nil
}

// PageAnnotations returns the dereferenced annotation dictionaries of a
// zero-based page. Unresolvable entries are skipped.
func (d *Document) PageAnnotations(pageIndex int) ([]types.Dict, error) {
	pd, _, err := d.pageDict(pageIndex)
	if err != nil {
		return nil, err
	}
	obj, found := pd.Find("Annots")
	if !found {
		return nil, nil
	}
	arr, err := d.ctx.DereferenceArray(obj)
	if err != nil || arr == nil {
		return nil, nil
	}
	annots := make([]types.Dict, 0, len(arr))
	for _, o := range arr {
		ad, err := d.ctx.DereferenceDict(o)
		if err != nil || ad == nil {
			continue
		}
		annots = append(annots, ad)
	}
	return annots, nil
}

// PageContent returns the decoded content stream bytes of a zero-based page.
// Pages without content yield an empty slice.
func (d *Document) PageContent(pageIndex int) ([]byte, error) {
	pd, _, err := d.pageDict(pageIndex)
	if err != nil {
		return nil, err
	}
	content, err := d.ctx.PageContent(pd)
	if errors.Is(err, model.ErrNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("page %d content: %w", pageIndex, err)
	}
	return content, nil
}

// XObjectImage decodes the named image XObject from a page's resources.
// The bool reports whether the name resolved to a decodable raster image.
func (d *Document) XObjectImage(pageIndex int, name string) (image.Image, bool) {
	sd := d.xObjectStream(pageIndex, name)
	if sd == nil {
		return nil, false
	}
	subtype := sd.Dict.Subtype()
	if subtype == nil || *subtype != "Image" {
		return nil, false
	}
	// DCT encoded images decode straight from the raw stream. Anything
	// wrapped in a transport filter needs decoding first.
	if img, _, err := image.Decode(bytes.NewReader(sd.Raw)); err == nil {
		return img, true
	}
	if err := sd.Decode(); err != nil {
		return nil, false
	}
	img, _, err := image.Decode(bytes.NewReader(sd.Content))
	if err != nil {
		return nil, false
	}
	return img, true
}

func (d *Document) xObjectStream(pageIndex int, name string) *types.StreamDict {
	_, res, err := d.pageDict(pageIndex)
	if err != nil || res == nil {
		return nil
	}
	obj, found := res.Find("XObject")
	if !found {
		return nil
	}
	xd, err := d.ctx.DereferenceDict(obj)
	if err != nil || xd == nil {
		return nil
	}
	entry, found := xd.Find(strings.TrimPrefix(name, "/"))
	if !found {
		return nil
	}
	sd, _, err := d.ctx.DereferenceStreamDict(entry)
	if err != nil {
		return nil
	}
	return sd
}

// DereferenceDict resolves obj to a dictionary.
func (d *Document) DereferenceDict(obj types.Object) (types.Dict, error) {
	return d.ctx.DereferenceDict(obj)
}

// DereferenceArray resolves obj to an array.
func (d *Document) DereferenceArray(obj types.Object) (types.Array, error) {
	return d.ctx.DereferenceArray(obj)
}

// Name resolves obj to a PDF name and reports whether it was one.
func (d *Document) Name(obj types.Object) (string, bool) {
	n, err := d.ctx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return "", false
	}
	return n.Value(), true
}

// Text resolves obj to a decoded text string and reports whether it was one.
func (d *Document) Text(obj types.Object) (string, bool) {
	s, err := d.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return "", false
	}
	return s, true
}

// Int resolves obj to an integer and reports whether it was one.
func (d *Document) Int(obj types.Object) (int, bool) {
	i, err := d.ctx.DereferenceInteger(obj)
	if err != nil || i == nil {
		return 0, false
	}
	return i.Value(), true
}

// Number resolves obj to a numeric value and reports whether it was one.
func (d *Document) Number(obj types.Object) (float64, bool) {
	f, err := d.ctx.DereferenceNumber(obj)
	if err != nil {
		return 0, false
	}
	return f, true
}
