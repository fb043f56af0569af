package intake

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// columns maps header positions for the standard marketplace export
// layout. -1 means the column is absent; only the id and description
// columns are required.
type columns struct {
	externalID int
	title      int
	rawText    int
	url        int
	price      int
	revenue    int
	profit     int
}

// headerAliases maps the column names marketplaces actually ship to the
// fields we need. Matching is case-insensitive over the trimmed header.
var headerAliases = map[string]string{
	"external_id":   "external_id",
	"listing_id":    "external_id",
	"id":            "external_id",
	"title":         "title",
	"name":          "title",
	"listing_title": "title",
	"description":   "raw_text",
	"raw_text":      "raw_text",
	"listing_text":  "raw_text",
	"url":           "url",
	"listing_url":   "url",
	"asking_price":  "price",
	"price":         "price",
	"annual_revenue": "revenue",
	"revenue":        "revenue",
	"ttm_revenue":    "revenue",
	"annual_profit":  "profit",
	"profit":         "profit",
	"ttm_profit":     "profit",
	"net_profit":     "profit",
}

func mapHeader(header []string) (columns, error) {
	cols := columns{externalID: -1, title: -1, rawText: -1, url: -1, price: -1, revenue: -1, profit: -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		switch headerAliases[key] {
		case "external_id":
			cols.externalID = i
		case "title":
			cols.title = i
		case "raw_text":
			cols.rawText = i
		case "url":
			cols.url = i
		case "price":
			cols.price = i
		case "revenue":
			cols.revenue = i
		case "profit":
			cols.profit = i
		}
	}
	if cols.externalID < 0 {
		return cols, faults.NewValidation("header", "no listing id column found")
	}
	if cols.rawText < 0 {
		return cols, faults.NewValidation("header", "no description column found")
	}
	return cols, nil
}

// DecodeCSV parses a marketplace CSV export. Rows missing an id or
// description are skipped, not fatal: bulk drops routinely carry blank
// trailer rows.
func DecodeCSV(r io.Reader, source string) ([]model.RawListing, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, faults.NewValidation("csv", "empty export")
	}
	if err != nil {
		return nil, eris.Wrap(err, "intake: read csv header")
	}

	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var listings []model.RawListing
	skipped := 0
	now := time.Now().UTC()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "intake: read csv row")
		}

		listing, ok := rowToListing(record, cols, source, now)
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

func rowToListing(record []string, cols columns, source string, fetchedAt time.Time) (model.RawListing, bool) {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	listing := model.RawListing{
		Source:     source,
		ExternalID: cell(cols.externalID),
		Title:      cell(cols.title),
		RawText:    cell(cols.rawText),
		URL:        cell(cols.url),
		FetchedAt:  fetchedAt,
	}
	if listing.ExternalID == "" || listing.RawText == "" {
		return model.RawListing{}, false
	}

	listing.AskingPrice = parseMoney(cell(cols.price))
	listing.AnnualRevenue = parseMoney(cell(cols.revenue))
	listing.AnnualProfit = parseMoney(cell(cols.profit))
	return listing, true
}

// parseMoney reads a currency cell. Absent or unparseable values stay nil;
// a zero dollar figure is still reported as zero, not absent.
func parseMoney(s string) *float64 {
	if s == "" {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}
