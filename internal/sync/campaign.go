package sync

import (
	"context"

	"github.com/pkg/errors"

	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/platform"
)

// syncCampaign pulls one campaign end to end: detail, variants, leads,
// events, then the per-campaign aggregate recompute. Sub-steps are not
// individually resumable; on interruption the cursor points at the start
// of the campaign, which is safe because every write is an upsert.
func (o *Orchestrator) syncCampaign(ctx context.Context, client PlatformAPI, ds models.DataSource, externalID string) error {
	summary, err := client.GetCampaign(ctx, externalID)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch campaign %s", externalID)
	}
	if summary == nil {
		// Deleted on the platform since the listing was cached.
		o.logger.Debug().Str("external_id", externalID).Msg("Campaign no longer exists, skipping")
		return nil
	}

	campaignID, err := o.entities.UpsertCampaign(models.Campaign{
		TenantID:     ds.TenantID,
		EngagementID: ds.EngagementID,
		DataSourceID: ds.ID,
		ExternalID:   summary.ID,
		Name:         summary.Name,
		Status:       summary.Status,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upsert campaign %s", externalID)
	}

	if err := o.syncVariants(ctx, client, campaignID, externalID); err != nil {
		return err
	}

	contactsByEmail, err := o.syncLeads(ctx, client, ds, externalID)
	if err != nil {
		return err
	}

	if err := o.syncEvents(ctx, client, ds, campaignID, externalID, contactsByEmail); err != nil {
		return err
	}

	if err := o.agg.Recompute(campaignID); err != nil {
		return errors.Wrapf(err, "failed to recompute aggregates for campaign %s", externalID)
	}
	return nil
}

func (o *Orchestrator) syncVariants(ctx context.Context, client PlatformAPI, campaignID, externalID string) error {
	variants, err := client.ListVariants(ctx, externalID)
	if err != nil {
		return errors.Wrapf(err, "failed to list variants for campaign %s", externalID)
	}
	for _, v := range variants {
		_, err := o.entities.UpsertVariant(models.Variant{
			CampaignID: campaignID,
			ExternalID: v.ID,
			StepNumber: v.StepNumber,
			Subject:    v.Subject,
			Body:       v.Body,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to upsert variant %s", v.ID)
		}
	}
	return nil
}

// syncLeads upserts every lead of the campaign, resolving companies by
// domain first, then name. Returns contact ids keyed by lower-cased email
// for the event fold.
func (o *Orchestrator) syncLeads(ctx context.Context, client PlatformAPI, ds models.DataSource, externalID string) (map[string]string, error) {
	leads, err := client.ListLeads(ctx, externalID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list leads for campaign %s", externalID)
	}

	contacts := make(map[string]string, len(leads))
	for _, lead := range leads {
		if lead.Email == "" {
			continue
		}

		var companyID *string
		if lead.CompanyName != "" || lead.CompanyDomain != "" {
			id, err := o.entities.ResolveCompany(ds.TenantID, ds.EngagementID, lead.CompanyName, lead.CompanyDomain)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve company for lead %s", lead.Email)
			}
			companyID = &id
		}

		contactID, err := o.entities.UpsertContact(models.Contact{
			TenantID:     ds.TenantID,
			EngagementID: ds.EngagementID,
			CompanyID:    companyID,
			Email:        lead.Email,
			FirstName:    lead.FirstName,
			LastName:     lead.LastName,
			Title:        lead.Title,
			Phone:        lead.Phone,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to upsert contact %s", lead.Email)
		}
		contacts[lead.Email] = contactID
	}
	return contacts, nil
}

// syncEvents folds the event stream into one Activity per (contact, step)
// and upserts each. Multiple events for the same touch collapse into the
// touch's lifecycle flags.
func (o *Orchestrator) syncEvents(ctx context.Context, client PlatformAPI, ds models.DataSource, campaignID, externalID string, contactsByEmail map[string]string) error {
	events, err := client.ListEvents(ctx, externalID)
	if err != nil {
		return errors.Wrapf(err, "failed to list events for campaign %s", externalID)
	}

	type touchKey struct {
		contactID string
		step      int
	}
	touches := make(map[touchKey]*models.Activity)

	for _, ev := range events {
		contactID, ok := contactsByEmail[ev.LeadEmail]
		if !ok {
			// Event for a lead that was not in the lead listing; skip rather
			// than invent a contact with no attributes.
			continue
		}
		key := touchKey{contactID: contactID, step: ev.StepNumber}
		act, ok := touches[key]
		if !ok {
			act = &models.Activity{
				TenantID:   ds.TenantID,
				CampaignID: campaignID,
				ContactID:  contactID,
				StepNumber: ev.StepNumber,
			}
			touches[key] = act
		}
		applyEvent(act, ev)
	}

	for _, act := range touches {
		if _, err := o.entities.UpsertActivity(*act); err != nil {
			return errors.Wrapf(err, "failed to upsert activity for campaign %s", externalID)
		}
	}
	return nil
}

func applyEvent(act *models.Activity, ev platform.EventPayload) {
	switch ev.Type {
	case "sent":
		act.Sent = true
		if act.SentAt == nil {
			act.SentAt = ev.Timestamp
		}
	case "opened":
		act.Opened = true
		if act.OpenedAt == nil {
			act.OpenedAt = ev.Timestamp
		}
	case "clicked":
		act.Clicked = true
	case "replied":
		act.Replied = true
		if act.RepliedAt == nil {
			act.RepliedAt = ev.Timestamp
		}
		if ev.ReplyCategory != "" {
			act.ReplyCategory = models.ReplyCategory(ev.ReplyCategory)
		}
	case "bounced":
		act.Bounced = true
	}
}
