// Package chunker divides quote documents into bounded, hashable
// chunks that extraction backends can process independently. Chunking
// is deterministic: the same bytes always produce the same manifest
// boundaries, IDs, and hashes.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/model"
)

const (
	// DefaultPagesPerChunk bounds PDF chunks.
	DefaultPagesPerChunk = 15
	// DefaultRowsPerChunk bounds spreadsheet chunks.
	DefaultRowsPerChunk = 4000

	// sparseThreshold is the minimum count of letters and digits per
	// chunk before it is flagged sparse (likely a scanned or image
	// page that text extraction produced little from).
	sparseThreshold = 120
)

// HashBytes returns the lowercase hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashString returns the lowercase hex SHA-256 of s.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// FileInfo reads the file at path and returns its identity for a
// manifest header.
func FileInfo(path string) (model.OriginalFile, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.OriginalFile{}, nil, eris.Wrapf(err, "chunker: read %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return model.OriginalFile{}, nil, eris.Wrapf(err, "chunker: stat %s", path)
	}
	return model.OriginalFile{
		FileName: info.Name(),
		SHA256:   HashBytes(data),
		Size:     info.Size(),
	}, data, nil
}

// ChunkPages builds a PDF manifest from per-page extracted text.
// Chunk IDs are derived from the source hash and chunk number so
// re-chunking the same document yields identical IDs.
func ChunkPages(original model.OriginalFile, pages []string, pagesPerChunk int) (*model.Manifest, error) {
	if len(pages) == 0 {
		return nil, eris.New("chunker: document has no pages")
	}
	if pagesPerChunk <= 0 {
		pagesPerChunk = DefaultPagesPerChunk
	}

	var chunks []model.Chunk
	for start := 0; start < len(pages); start += pagesPerChunk {
		end := start + pagesPerChunk
		if end > len(pages) {
			end = len(pages)
		}
		text := strings.Join(pages[start:end], "\n\f\n")
		n := len(chunks) + 1
		chunks = append(chunks, model.Chunk{
			ID:            chunkID(original.SHA256, n),
			Number:        n,
			PageStart:     start + 1,
			PageEnd:       end,
			Text:          text,
			SHA256:        HashString(text),
			TokenEstimate: estimateTokens(text),
			Quality:       assessQuality(text),
		})
	}

	return &model.Manifest{
		Original:   original,
		Chunks:     chunks,
		TotalPages: len(pages),
		CreatedAt:  time.Now().UTC(),
		Version:    model.PDFChunkerVersion,
	}, nil
}

// Sheet is one worksheet's rows ready for chunking. Rows exclude the
// header, which is repeated in every chunk so each is independently
// parseable.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ChunkWorkbook builds a spreadsheet manifest. Each sheet is chunked
// separately; row bounds are 1-based data-row indices within the sheet.
func ChunkWorkbook(original model.OriginalFile, sheets []Sheet, rowsPerChunk int) (*model.Manifest, error) {
	if len(sheets) == 0 {
		return nil, eris.New("chunker: workbook has no sheets")
	}
	if rowsPerChunk <= 0 {
		rowsPerChunk = DefaultRowsPerChunk
	}

	var chunks []model.Chunk
	for _, sheet := range sheets {
		for start := 0; start < len(sheet.Rows); start += rowsPerChunk {
			end := start + rowsPerChunk
			if end > len(sheet.Rows) {
				end = len(sheet.Rows)
			}
			text := renderRows(sheet.Header, sheet.Rows[start:end])
			n := len(chunks) + 1
			chunks = append(chunks, model.Chunk{
				ID:            chunkID(original.SHA256, n),
				Number:        n,
				RowStart:      start + 1,
				RowEnd:        end,
				SheetName:     sheet.Name,
				Header:        sheet.Header,
				Text:          text,
				SHA256:        HashString(text),
				TokenEstimate: estimateTokens(text),
				Quality:       assessQuality(text),
			})
		}
	}
	if len(chunks) == 0 {
		return nil, eris.New("chunker: workbook has no data rows")
	}

	return &model.Manifest{
		Original:    original,
		Chunks:      chunks,
		TotalSheets: len(sheets),
		CreatedAt:   time.Now().UTC(),
		Version:     model.XLSXChunkerVersion,
	}, nil
}

// Split halves a chunk for adaptive retry after a terminal timeout.
// Pure function of the parent: no I/O, no re-reading the source. The
// split point is the line boundary nearest the midpoint of the text so
// no row or paragraph is cut in half.
func Split(parent model.Chunk) ([]model.Chunk, error) {
	lines := strings.Split(parent.Text, "\n")
	if len(lines) < 2 {
		return nil, eris.Errorf("chunker: chunk %s cannot be split further", parent.ID)
	}

	mid := splitIndex(lines)
	firstText := strings.Join(lines[:mid], "\n")
	secondText := strings.Join(lines[mid:], "\n")

	first := deriveChunk(parent, 1, firstText)
	second := deriveChunk(parent, 2, secondText)

	if parent.PageEnd > parent.PageStart {
		pageMid := parent.PageStart + (parent.PageEnd-parent.PageStart)/2
		first.PageEnd = pageMid
		second.PageStart = pageMid + 1
	}
	if parent.RowEnd > parent.RowStart {
		rowMid := parent.RowStart + (parent.RowEnd-parent.RowStart)/2
		first.RowEnd = rowMid
		second.RowStart = rowMid + 1
	}

	return []model.Chunk{first, second}, nil
}

func deriveChunk(parent model.Chunk, part int, text string) model.Chunk {
	c := parent
	c.ID = fmt.Sprintf("%s.%d", parent.ID, part)
	c.Text = text
	c.SHA256 = HashString(text)
	c.TokenEstimate = estimateTokens(text)
	c.Quality = assessQuality(text)
	return c
}

// splitIndex picks the line index closest to half the text by bytes.
func splitIndex(lines []string) int {
	total := 0
	for _, l := range lines {
		total += len(l) + 1
	}
	target := total / 2

	acc := 0
	for i, l := range lines {
		acc += len(l) + 1
		if acc >= target {
			// Never produce an empty side.
			if i+1 >= len(lines) {
				return len(lines) - 1
			}
			return i + 1
		}
	}
	return len(lines) / 2
}

func chunkID(sourceSHA string, number int) string {
	prefix := sourceSHA
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return fmt.Sprintf("%s-%04d", prefix, number)
}

func renderRows(header []string, rows [][]string) string {
	var sb strings.Builder
	if len(header) > 0 {
		sb.WriteString(strings.Join(header, "\t"))
		sb.WriteString("\n")
	}
	for _, row := range rows {
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func estimateTokens(text string) int {
	// Rough heuristic: one token per four bytes.
	return len(text) / 4
}

func assessQuality(text string) string {
	count := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			count++
			if count >= sparseThreshold {
				return model.ChunkQualityGood
			}
		}
	}
	return model.ChunkQualitySparse
}
