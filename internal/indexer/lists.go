package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

type listPayload struct {
	ID               uint64   `json:"id"`
	Owner            string   `json:"owner"`
	Admins           []string `json:"admins"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	CoverImageURL    string   `json:"cover_image_url"`
	AdminOnlyRegs    bool     `json:"admin_only_registrations"`
	DefaultRegStatus string   `json:"default_registration_status"`
	CreatedAtMs      uint64   `json:"created_at"`
	UpdatedAtMs      uint64   `json:"updated_at"`
}

// handleListCreate inserts a list; its on-chain id is globally new, so
// a conflict only happens on replay.
func (idx *Indexer) handleListCreate(ctx context.Context, ev decoder.Event) error {
	var payload listPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode list payload: %w", err)
	}

	if err := idx.applyList(ctx, ev, payload); err != nil {
		return err
	}

	return idx.recordActivity(ctx, ev, models.ActivityCreateList)
}

// applyList maps a list payload onto the stored row. Used both for
// create events and for lists materialized from a get_list view call.
func (idx *Indexer) applyList(ctx context.Context, ev decoder.Event, payload listPayload) error {
	owner := payload.Owner
	if owner == "" {
		owner = ev.Ctx.SignerID
	}
	if _, _, err := idx.store.GetOrCreateAccount(ctx, owner); err != nil {
		return err
	}

	createdAt := ev.Ctx.BlockTime
	if t := msTime(payload.CreatedAtMs); t != nil {
		createdAt = *t
	}
	updatedAt := createdAt
	if t := msTime(payload.UpdatedAtMs); t != nil {
		updatedAt = *t
	}

	status := models.RegistrationStatus(payload.DefaultRegStatus)
	if status == "" {
		status = models.RegistrationPending
	}

	return idx.store.CreateList(ctx, &models.List{
		ID:               payload.ID,
		OwnerID:          owner,
		Name:             payload.Name,
		Description:      strPtr(payload.Description),
		CoverImageURL:    strPtr(payload.CoverImageURL),
		AdminOnlyRegs:    payload.AdminOnlyRegs,
		DefaultRegStatus: status,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	})
}

type registrationEntry struct {
	ID              uint64 `json:"id"`
	RegistrantID    string `json:"registrant_id"`
	RegisteredBy    string `json:"registered_by"`
	Status          string `json:"status"`
	SubmittedMs     uint64 `json:"submitted_ms"`
	UpdatedMs       uint64 `json:"updated_ms"`
	RegistrantNotes string `json:"registrant_notes"`
	AdminNotes      string `json:"admin_notes"`
}

type registrationBatchPayload struct {
	ListID        uint64              `json:"list_id"`
	Registrations []registrationEntry `json:"registrations"`
}

// handleListRegistrationBatch bulk-inserts registrations decoded from a
// batch payload, tolerating partial duplicates.
func (idx *Indexer) handleListRegistrationBatch(ctx context.Context, ev decoder.Event) error {
	var payload registrationBatchPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode registration batch payload: %w", err)
	}

	if err := idx.ensureList(ctx, ev, payload.ListID); err != nil {
		return err
	}

	regs := make([]models.ListRegistration, 0, len(payload.Registrations))
	for _, entry := range payload.Registrations {
		registeredBy := entry.RegisteredBy
		if registeredBy == "" {
			registeredBy = ev.Ctx.SignerID
		}
		for _, id := range []string{entry.RegistrantID, registeredBy} {
			if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
				return err
			}
		}

		submittedAt := ev.Ctx.BlockTime
		if t := msTime(entry.SubmittedMs); t != nil {
			submittedAt = *t
		}
		updatedAt := submittedAt
		if t := msTime(entry.UpdatedMs); t != nil {
			updatedAt = *t
		}

		regs = append(regs, models.ListRegistration{
			ID:              entry.ID,
			ListID:          payload.ListID,
			RegistrantID:    entry.RegistrantID,
			RegisteredBy:    registeredBy,
			Status:          models.RegistrationStatus(entry.Status),
			SubmittedAt:     submittedAt,
			UpdatedAt:       updatedAt,
			RegistrantNotes: strPtr(entry.RegistrantNotes),
			AdminNotes:      strPtr(entry.AdminNotes),
			TxHash:          ev.Ctx.TxHash,
		})
	}

	if err := idx.store.BulkInsertRegistrations(ctx, regs); err != nil {
		return err
	}

	typ := models.ActivityRegister
	if len(regs) > 1 {
		typ = models.ActivityRegisterBatch
	}
	return idx.recordActivity(ctx, ev, typ)
}

type registrationUpdatePayload struct {
	RegistrationID uint64 `json:"registration_id"`
	Status         string `json:"status"`
	Notes          string `json:"notes"`
}

// handleListRegistrationUpdate applies a targeted status update by
// registration id.
func (idx *Indexer) handleListRegistrationUpdate(ctx context.Context, ev decoder.Event) error {
	var payload registrationUpdatePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode registration update payload: %w", err)
	}

	return idx.store.UpdateRegistration(ctx,
		payload.RegistrationID,
		models.RegistrationStatus(payload.Status),
		strPtr(payload.Notes),
	)
}

type upvotePayload struct {
	ListID uint64 `json:"list_id"`
}

// handleListUpvote records an upvote keyed by (list, account).
func (idx *Indexer) handleListUpvote(ctx context.Context, ev decoder.Event) error {
	var payload upvotePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode upvote payload: %w", err)
	}

	if _, _, err := idx.store.GetOrCreateAccount(ctx, ev.Ctx.SignerID); err != nil {
		return err
	}
	if err := idx.ensureList(ctx, ev, payload.ListID); err != nil {
		return err
	}

	if err := idx.store.UpsertUpvote(ctx, &models.ListUpvote{
		ListID:    payload.ListID,
		AccountID: ev.Ctx.SignerID,
		CreatedAt: ev.Ctx.BlockTime,
	}); err != nil {
		return err
	}

	return idx.recordActivity(ctx, ev, models.ActivityUpvote)
}
