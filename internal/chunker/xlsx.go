package chunker

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/quote-cli/internal/model"
)

// ExtractXLSX opens a workbook and chunks every non-empty sheet. The
// first non-empty row of each sheet is treated as its header and
// repeated in every chunk of that sheet.
func ExtractXLSX(path string, rowsPerChunk int) (*model.Manifest, error) {
	original, _, err := FileInfo(path)
	if err != nil {
		return nil, err
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "chunker: open workbook %s", path)
	}

	var sheets []Sheet
	for _, sh := range f.Sheets {
		sheet := readSheet(sh)
		if len(sheet.Rows) > 0 {
			sheets = append(sheets, sheet)
		}
	}
	if len(sheets) == 0 {
		return nil, eris.Errorf("chunker: workbook %s has no data rows", original.FileName)
	}

	return ChunkWorkbook(original, sheets, rowsPerChunk)
}

func readSheet(sh *xlsx.Sheet) Sheet {
	sheet := Sheet{Name: sh.Name}
	for _, row := range sh.Rows {
		cells := rowToStrings(row)
		if isEmptyRow(cells) {
			continue
		}
		if sheet.Header == nil {
			sheet.Header = cells
			continue
		}
		sheet.Rows = append(sheet.Rows, cells)
	}
	return sheet
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
