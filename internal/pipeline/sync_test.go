package pipeline

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/pkg/notion"
	"github.com/sells-group/acquire-pipeline/pkg/salesforce"
)

// stubNotion satisfies notion.Client. The empty query response steers every
// upsert down the create path.
type stubNotion struct {
	err     error
	created int
}

func (s *stubNotion) QueryDatabase(_ context.Context, _ string, _ *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (s *stubNotion) CreatePage(_ context.Context, _ *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created++
	return &notionapi.Page{ID: "page-1"}, nil
}

func (s *stubNotion) UpdatePage(_ context.Context, pageID string, _ *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

// stubCRM satisfies salesforce.Client and records what was written.
type stubCRM struct {
	existing  *salesforce.Opportunity
	queryErr  error
	insertErr error
	inserted  map[string]any
	updated   map[string]any
	updatedID string
}

func (s *stubCRM) Query(_ context.Context, _ string, out any) error {
	if s.queryErr != nil {
		return s.queryErr
	}
	if s.existing != nil {
		*(out.(*[]salesforce.Opportunity)) = []salesforce.Opportunity{*s.existing}
	}
	return nil
}

func (s *stubCRM) InsertOne(_ context.Context, _ string, record map[string]any) (string, error) {
	if s.insertErr != nil {
		return "", s.insertErr
	}
	s.inserted = record
	return "006NEW", nil
}

func (s *stubCRM) UpdateOne(_ context.Context, _ string, id string, fields map[string]any) error {
	s.updatedID = id
	s.updated = fields
	return nil
}

func syncScoring() *model.ScoringRecord {
	return &model.ScoringRecord{
		ID:            "scr-1",
		BusinessID:    "flippa:12345",
		RecordVersion: 2,
		Total:         88.5,
		Tier:          model.TierA,
		TopBuyReasons: []string{"price_efficiency", "moat", "ai_leverage"},
		TopRisks:      []string{"risk", "operations", "trust"},
	}
}

func TestPushWritesBothSinks(t *testing.T) {
	deals := &stubNotion{}
	crm := &stubCRM{}
	s := NewSyncer(notion.NewDealDesk(deals, "db-1"), crm)

	status := s.Push(context.Background(), saasListing(), syncScoring(), 2)

	assert.True(t, status.Attempted)
	assert.True(t, status.DealDesk)
	assert.True(t, status.CRM)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 1, deals.created)

	require.NotNil(t, crm.inserted)
	assert.Equal(t, "Invoicing SaaS for plumbers", crm.inserted["Name"])
	assert.Equal(t, 88.5, crm.inserted["Acquisition_Score__c"])
	assert.Equal(t, "A", crm.inserted["Acquisition_Tier__c"])
	assert.Equal(t, 2, crm.inserted["Record_Version__c"])
	assert.Equal(t, 2, crm.inserted["Open_Questions__c"])
	assert.Equal(t, "price_efficiency; moat; ai_leverage", crm.inserted["Top_Buy_Reasons__c"])
	assert.Equal(t, "risk; operations; trust", crm.inserted["Top_Risks__c"])
	assert.Equal(t, 150000.0, crm.inserted["Amount"])
	assert.Equal(t, "flippa:12345", crm.inserted["Listing_ID__c"])
}

func TestPushUpdatesExistingOpportunity(t *testing.T) {
	crm := &stubCRM{existing: &salesforce.Opportunity{ID: "006EXIST", ListingID: "flippa:12345"}}
	s := NewSyncer(notion.NewDealDesk(&stubNotion{}, "db-1"), crm)

	status := s.Push(context.Background(), saasListing(), syncScoring(), 0)

	assert.True(t, status.CRM)
	assert.Equal(t, "006EXIST", crm.updatedID)
	assert.Nil(t, crm.inserted)
	assert.Equal(t, 0, crm.updated["Open_Questions__c"])
}

func TestPushCRMFailureDegrades(t *testing.T) {
	crm := &stubCRM{queryErr: eris.New("sf: query: expired session")}
	s := NewSyncer(notion.NewDealDesk(&stubNotion{}, "db-1"), crm)

	status := s.Push(context.Background(), saasListing(), syncScoring(), 1)

	assert.True(t, status.Attempted)
	assert.True(t, status.DealDesk)
	assert.False(t, status.CRM)
	assert.Contains(t, status.LastError, "expired session")
}

func TestPushDealDeskFailureDegrades(t *testing.T) {
	deals := &stubNotion{err: eris.New("notion: rate limit: 429")}
	s := NewSyncer(notion.NewDealDesk(deals, "db-1"), &stubCRM{})

	status := s.Push(context.Background(), saasListing(), syncScoring(), 1)

	assert.True(t, status.Attempted)
	assert.False(t, status.DealDesk)
	assert.True(t, status.CRM)
	assert.Contains(t, status.LastError, "429")
}

func TestPushJoinsBothFailures(t *testing.T) {
	deals := &stubNotion{err: eris.New("notion: down")}
	crm := &stubCRM{queryErr: eris.New("sf: down")}
	s := NewSyncer(notion.NewDealDesk(deals, "db-1"), crm)

	status := s.Push(context.Background(), saasListing(), syncScoring(), 0)

	assert.False(t, status.DealDesk)
	assert.False(t, status.CRM)
	assert.Contains(t, status.LastError, "notion: down")
	assert.Contains(t, status.LastError, "sf: down")
	assert.Contains(t, status.LastError, "; ")
}

func TestCRMFieldsOmitsUnsetValues(t *testing.T) {
	scoring := &model.ScoringRecord{
		BusinessID:    "flippa:9",
		RecordVersion: 1,
		Total:         71.0,
		Tier:          model.TierB,
	}
	fields := crmFields(model.RawListing{Source: "flippa", ExternalID: "9"}, scoring, 0)

	assert.Equal(t, "flippa:9", fields["Name"]) // falls back to the business id
	assert.NotContains(t, fields, "Top_Buy_Reasons__c")
	assert.NotContains(t, fields, "Top_Risks__c")
	assert.NotContains(t, fields, "Amount")
}
