package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Deal is the scored-listing summary pushed to the deal-desk database.
type Deal struct {
	BusinessID    string
	Name          string
	URL           string
	Tier          string
	Total         float64
	RecordVersion int
	TopBuyReasons []string
	TopRisks      []string
	OpenQuestions int
}

// DealDesk upserts scored listings into a single Notion database, keyed by
// the "Business ID" rich-text property.
type DealDesk struct {
	client Client
	dbID   string
}

// NewDealDesk returns a DealDesk writing to the given database.
func NewDealDesk(c Client, dbID string) *DealDesk {
	return &DealDesk{client: c, dbID: dbID}
}

// Upsert creates the deal page if none exists for deal.BusinessID, otherwise
// updates the existing page in place. Returns the page ID and whether a new
// page was created.
func (d *DealDesk) Upsert(ctx context.Context, deal Deal) (string, bool, error) {
	if deal.BusinessID == "" {
		return "", false, eris.New("notion: deal business id is required")
	}

	pageID, err := d.findPage(ctx, deal.BusinessID)
	if err != nil {
		return "", false, err
	}

	props := dealProperties(deal)
	if pageID != "" {
		if _, err := d.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return "", false, eris.Wrap(err, fmt.Sprintf("notion: update deal %s", deal.BusinessID))
		}
		return pageID, false, nil
	}

	page, err := d.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(d.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", false, eris.Wrap(err, fmt.Sprintf("notion: create deal %s", deal.BusinessID))
	}
	return string(page.ID), true, nil
}

// findPage looks up the page whose "Business ID" property equals businessID.
// Returns an empty string when no page matches.
func (d *DealDesk) findPage(ctx context.Context, businessID string) (string, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Business ID",
			RichText: &notionapi.TextFilterCondition{Equals: businessID},
		},
		PageSize: 1,
	}
	resp, err := d.client.QueryDatabase(ctx, d.dbID, req)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: find deal %s", businessID))
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// dealProperties converts a Deal to Notion page properties. The page title
// falls back to the business ID when the listing has no name.
func dealProperties(deal Deal) notionapi.Properties {
	name := deal.Name
	if name == "" {
		name = deal.BusinessID
	}

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(name),
		},
		"Business ID": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(deal.BusinessID),
		},
		"Tier": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: deal.Tier},
		},
		"Total Score": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: deal.Total,
		},
		"Record Version": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(deal.RecordVersion),
		},
		"Open Questions": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(deal.OpenQuestions),
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{Name: "Scored"},
		},
	}

	if deal.URL != "" {
		props["URL"] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  deal.URL,
		}
	}
	if len(deal.TopBuyReasons) > 0 {
		props["Top Buy Reasons"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(bulletList(deal.TopBuyReasons)),
		}
	}
	if len(deal.TopRisks) > 0 {
		props["Top Risks"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(bulletList(deal.TopRisks)),
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

func bulletList(items []string) string {
	return "- " + strings.Join(items, "\n- ")
}
