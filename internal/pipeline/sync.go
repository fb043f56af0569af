package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/pkg/notion"
	"github.com/sells-group/acquire-pipeline/pkg/salesforce"
)

// Syncer pushes gate-eligible results to the deal desk and the CRM. The two
// sinks are written concurrently; either side failing degrades the sync
// without failing the run.
type Syncer struct {
	dealDesk *notion.DealDesk
	crm      salesforce.Client
}

// NewSyncer returns a syncer writing to both sinks.
func NewSyncer(dealDesk *notion.DealDesk, crm salesforce.Client) *Syncer {
	return &Syncer{dealDesk: dealDesk, crm: crm}
}

// Push upserts the deal-desk page and the CRM opportunity for one scored
// listing. The returned status records which sinks took the write; re-pushing
// the same listing overwrites in place, so a degraded sync heals on the next
// run.
func (s *Syncer) Push(ctx context.Context, listing model.RawListing, scoring *model.ScoringRecord, openQuestions int) model.SyncStatus {
	log := zap.L().With(zap.String("business_id", scoring.BusinessID))
	status := model.SyncStatus{Attempted: true}

	var dealErr, crmErr error
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, created, err := s.dealDesk.Upsert(gctx, notion.Deal{
			BusinessID:    scoring.BusinessID,
			Name:          listing.Title,
			URL:           listing.URL,
			Tier:          string(scoring.Tier),
			Total:         scoring.Total,
			RecordVersion: scoring.RecordVersion,
			TopBuyReasons: scoring.TopBuyReasons,
			TopRisks:      scoring.TopRisks,
			OpenQuestions: openQuestions,
		})
		if err != nil {
			dealErr = err
			log.Warn("sync: deal desk write failed", zap.Error(err))
			return nil
		}
		log.Info("sync: deal desk updated", zap.Bool("created", created))
		return nil
	})

	g.Go(func() error {
		id, created, err := salesforce.UpsertOpportunity(gctx, s.crm, scoring.BusinessID, crmFields(listing, scoring, openQuestions))
		if err != nil {
			crmErr = err
			log.Warn("sync: crm write failed", zap.Error(err))
			return nil
		}
		log.Info("sync: crm opportunity updated",
			zap.String("opportunity_id", id),
			zap.Bool("created", created),
		)
		return nil
	})
	_ = g.Wait()

	status.DealDesk = dealErr == nil
	status.CRM = crmErr == nil
	var parts []string
	if dealErr != nil {
		parts = append(parts, dealErr.Error())
	}
	if crmErr != nil {
		parts = append(parts, crmErr.Error())
	}
	status.LastError = strings.Join(parts, "; ")
	return status
}

// crmFields maps a scored listing onto the Opportunity score fields.
func crmFields(listing model.RawListing, scoring *model.ScoringRecord, openQuestions int) map[string]any {
	name := listing.Title
	if name == "" {
		name = scoring.BusinessID
	}
	fields := map[string]any{
		"Name":                 name,
		"Acquisition_Score__c": scoring.Total,
		"Acquisition_Tier__c":  string(scoring.Tier),
		"Record_Version__c":    scoring.RecordVersion,
		"Open_Questions__c":    openQuestions,
	}
	if len(scoring.TopBuyReasons) > 0 {
		fields["Top_Buy_Reasons__c"] = strings.Join(scoring.TopBuyReasons, "; ")
	}
	if len(scoring.TopRisks) > 0 {
		fields["Top_Risks__c"] = strings.Join(scoring.TopRisks, "; ")
	}
	if listing.AskingPrice != nil {
		fields["Amount"] = *listing.AskingPrice
	}
	return fields
}
