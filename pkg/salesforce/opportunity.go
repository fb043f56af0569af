package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Opportunity represents a Salesforce Opportunity record. Listing_ID__c is a
// custom field carrying the marketplace business identifier, which is the
// upsert key for acquisition targets.
type Opportunity struct {
	ID        string  `json:"Id" salesforce:"Id"`
	Name      string  `json:"Name" salesforce:"Name"`
	StageName string  `json:"StageName" salesforce:"StageName"`
	Amount    float64 `json:"Amount" salesforce:"Amount"`
	ListingID string  `json:"Listing_ID__c" salesforce:"Listing_ID__c"`
}

// opportunityFields are the SOQL fields selected for Opportunity queries.
var opportunityFields = []string{
	"Id", "Name", "StageName", "Amount", "Listing_ID__c",
}

// FindOpportunityByListing queries Salesforce for the Opportunity tied to the
// given marketplace listing. Returns nil if none exists.
func FindOpportunityByListing(ctx context.Context, c Client, listingID string) (*Opportunity, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Opportunity WHERE Listing_ID__c = '%s' LIMIT 1",
		strings.Join(opportunityFields, ", "),
		escapeSoql(listingID),
	)

	var opps []Opportunity
	if err := c.Query(ctx, soql, &opps); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find opportunity for listing %s", listingID))
	}
	if len(opps) == 0 {
		return nil, nil
	}
	return &opps[0], nil
}

// UpsertOpportunity updates the Opportunity for listingID with the given
// fields, creating it when none exists. Creation requires a Name; StageName
// and CloseDate get defaults when absent since Salesforce mandates both.
// Returns the Opportunity ID and whether a new record was created.
func UpsertOpportunity(ctx context.Context, c Client, listingID string, fields map[string]any) (string, bool, error) {
	if listingID == "" {
		return "", false, eris.New("sf: listing id is required")
	}
	if len(fields) == 0 {
		return "", false, eris.New("sf: no fields to write")
	}

	opp, err := FindOpportunityByListing(ctx, c, listingID)
	if err != nil {
		return "", false, err
	}

	if opp != nil {
		if err := c.UpdateOne(ctx, "Opportunity", opp.ID, fields); err != nil {
			return "", false, eris.Wrap(err, fmt.Sprintf("sf: update opportunity %s", opp.ID))
		}
		return opp.ID, false, nil
	}

	record := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		record[k] = v
	}
	record["Listing_ID__c"] = listingID
	if record["Name"] == nil || record["Name"] == "" {
		return "", false, eris.New("sf: opportunity Name is required")
	}
	if record["StageName"] == nil {
		record["StageName"] = "Qualification"
	}
	if record["CloseDate"] == nil {
		record["CloseDate"] = time.Now().AddDate(0, 0, 90).Format("2006-01-02")
	}

	id, err := c.InsertOne(ctx, "Opportunity", record)
	if err != nil {
		return "", false, eris.Wrap(err, fmt.Sprintf("sf: create opportunity for listing %s", listingID))
	}
	return id, true, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
