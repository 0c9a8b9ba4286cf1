package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

type applicationPayload struct {
	ProjectID string `json:"project_id"`
	Applicant string `json:"applicant"`
	Message   string `json:"message"`
}

func (p applicationPayload) applicant(fallback string) string {
	if p.ProjectID != "" {
		return p.ProjectID
	}
	if p.Applicant != "" {
		return p.Applicant
	}
	return fallback
}

// handleNewApplication upserts the application keyed by
// (pot, applicant) and records the submit activity.
func (idx *Indexer) handleNewApplication(ctx context.Context, ev decoder.Event) error {
	var payload applicationPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode application payload: %w", err)
	}

	potID := ev.Ctx.ReceiverID
	applicantID := payload.applicant(ev.Ctx.SignerID)

	for _, id := range []string{potID, applicantID, ev.Ctx.SignerID} {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
			return err
		}
	}
	if err := idx.ensurePot(ctx, ev, potID); err != nil {
		return err
	}

	_, err := idx.store.UpsertPotApplication(ctx, &models.PotApplication{
		PotID:       potID,
		ApplicantID: applicantID,
		Message:     strPtr(payload.Message),
		Status:      models.ApplicationPending,
		SubmittedAt: ev.Ctx.BlockTime,
		TxHash:      ev.Ctx.TxHash,
	})
	if err != nil {
		return err
	}

	return idx.recordActivity(ctx, ev, models.ActivitySubmitApplication)
}

type statusChangePayload struct {
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
}

// handleApplicationStatusChange updates the application's current
// status and appends a review row. Replaying the same review is a
// no-op; history from distinct transitions is retained.
func (idx *Indexer) handleApplicationStatusChange(ctx context.Context, ev decoder.Event) error {
	var payload statusChangePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode status change payload: %w", err)
	}

	potID := ev.Ctx.ReceiverID
	if _, _, err := idx.store.GetOrCreateAccount(ctx, ev.Ctx.SignerID); err != nil {
		return err
	}

	app, found, err := idx.store.GetPotApplication(ctx, potID, payload.ProjectID)
	if err != nil {
		return err
	}
	if !found {
		// Status change for an application we never saw: create it with
		// minimal defaults, then transition. Entities are enriched later.
		if _, _, err := idx.store.GetOrCreateAccount(ctx, payload.ProjectID); err != nil {
			return err
		}
		if err := idx.ensurePot(ctx, ev, potID); err != nil {
			return err
		}
		id, err := idx.store.UpsertPotApplication(ctx, &models.PotApplication{
			PotID:       potID,
			ApplicantID: payload.ProjectID,
			Status:      models.ApplicationPending,
			SubmittedAt: ev.Ctx.BlockTime,
		})
		if err != nil {
			return err
		}
		app = &models.PotApplication{ID: id}
	}

	if err := idx.store.SetApplicationStatus(ctx, &models.PotApplicationReview{
		ApplicationID: app.ID,
		ReviewerID:    ev.Ctx.SignerID,
		Notes:         strPtr(payload.Notes),
		Status:        models.ApplicationStatus(payload.Status),
		ReviewedAt:    ev.Ctx.BlockTime,
		TxHash:        ev.Ctx.TxHash,
	}); err != nil {
		return err
	}

	return idx.recordActivity(ctx, ev, models.ActivityUpdateApplication)
}
