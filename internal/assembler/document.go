package assembler

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/jackzampolin/pagecap/internal/imageprep"
)

var disableConfigDir sync.Once

// pdfConfig returns a pdfcpu configuration that never touches the user's config dir.
func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Document is an in-progress PDF. Each page is held as its own single-page PDF
// until the document is serialized, so a failed embed never leaves a partial page.
type Document struct {
	pages [][]byte
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// PageCount returns the number of embedded pages.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// AddImagePage embeds art as a new last page sized exactly to its pixel dimensions.
func (d *Document) AddImagePage(art *imageprep.PageArtifact) error {
	page, err := embedImage(art)
	if err != nil {
		return err
	}
	d.pages = append(d.pages, page)
	return nil
}

// Serialize writes all pages, in order, to a single PDF.
func (d *Document) Serialize() ([]byte, error) {
	switch len(d.pages) {
	case 0:
		return nil, fmt.Errorf("document has no pages")
	case 1:
		return bytes.Clone(d.pages[0]), nil
	}
	return MergePDFs(d.pages)
}

// embedImage renders a single-page PDF containing art at 1pt per pixel.
func embedImage(art *imageprep.PageArtifact) ([]byte, error) {
	raw, err := art.Bytes()
	if err != nil {
		return nil, err
	}

	imp, err := api.Import(fmt.Sprintf("dimensions:%d %d, position:full", art.Width, art.Height), types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("import settings: %w", err)
	}

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(raw)}, imp, pdfConfig()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// MergePDFs concatenates the pages of each PDF, in slice order, into a new PDF.
func MergePDFs(pdfs [][]byte) ([]byte, error) {
	rsc := make([]io.ReadSeeker, len(pdfs))
	for i, p := range pdfs {
		rsc[i] = bytes.NewReader(p)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, false, pdfConfig()); err != nil {
		return nil, fmt.Errorf("merging %d documents: %w", len(pdfs), err)
	}
	return out.Bytes(), nil
}

// CountPages returns the page count of a serialized PDF.
func CountPages(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), pdfConfig())
}

// PageSizes returns the width and height in points of every page of pdf, in order.
func PageSizes(pdf []byte) ([][2]float64, error) {
	dims, err := api.PageDims(bytes.NewReader(pdf), pdfConfig())
	if err != nil {
		return nil, err
	}
	sizes := make([][2]float64, len(dims))
	for i, d := range dims {
		sizes[i] = [2]float64{d.Width, d.Height}
	}
	return sizes, nil
}
