package chunker

import (
	"github.com/gen2brain/go-fitz"
	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/model"
)

// ExtractPDF opens a PDF, pulls the text of every page, and chunks the
// pages. A document that cannot be opened or read is a hard error: no
// partial manifest is produced.
func ExtractPDF(path string, pagesPerChunk int) (*model.Manifest, error) {
	original, _, err := FileInfo(path)
	if err != nil {
		return nil, err
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, eris.Wrapf(err, "chunker: open pdf %s", path)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, eris.Wrapf(err, "chunker: extract page %d of %s", i+1, original.FileName)
		}
		pages = append(pages, text)
	}

	return ChunkPages(original, pages, pagesPerChunk)
}
