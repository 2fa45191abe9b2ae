package render

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// pdfMagic is the header every PDF starts with
var pdfMagic = []byte("%PDF-")

// Validate checks that doc is a readable PDF and returns its page count.
// Validation is relaxed: scanner software often writes slightly broken files
// that still render fine.
func Validate(doc []byte) (pages int, err error) {
	// pdfcpu can panic on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, r)
		}
	}()

	if !bytes.HasPrefix(doc, pdfMagic) {
		return 0, fmt.Errorf("%w: missing PDF header", domain.ErrInvalidDocument)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(doc), conf); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}

	ctx, err := api.ReadContext(bytes.NewReader(doc), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	if ctx.PageCount < 1 {
		return 0, fmt.Errorf("%w: document has no pages", domain.ErrInvalidDocument)
	}
	return ctx.PageCount, nil
}

// CheckPage validates doc and that page exists in it
func CheckPage(doc []byte, page int) error {
	n, err := Validate(doc)
	if err != nil {
		return err
	}
	if page < 1 || page > n {
		return fmt.Errorf("%w: page %d out of range (document has %d)", domain.ErrInvalidDocument, page, n)
	}
	return nil
}
