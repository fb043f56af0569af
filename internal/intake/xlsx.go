package intake

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// DecodeXLSX parses a marketplace XLSX export. The first sheet is read;
// its first row must be the header. Row handling matches DecodeCSV.
func DecodeXLSX(data []byte, source string) ([]model.RawListing, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "intake: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, faults.NewValidation("xlsx", "export has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, faults.NewValidation("xlsx", "empty export")
	}

	cols, err := mapHeader(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	var listings []model.RawListing
	skipped := 0
	now := time.Now().UTC()
	for _, row := range sheet.Rows[1:] {
		listing, ok := rowToListing(rowToStrings(row), cols, source, now)
		if !ok {
			skipped++
			continue
		}
		listings = append(listings, listing)
	}

	if skipped > 0 {
		zap.L().Warn("intake: skipped incomplete rows",
			zap.String("source", source),
			zap.Int("skipped", skipped),
		)
	}
	return listings, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
