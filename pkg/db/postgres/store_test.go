package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore connects to the database named by TEST_POSTGRES_URL and
// ensures the schema. Tests are skipped when the variable is unset, so
// the suite stays runnable without a database.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	store, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.InitSchema(ctx))
	return store
}

// uniqueID builds an account id that cannot collide with rows left
// behind by earlier runs against the same database.
func uniqueID(suffix string) string {
	return fmt.Sprintf("t%d.%s", time.Now().UnixNano(), suffix)
}

func mustAccounts(t *testing.T, store *Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, _, err := store.GetOrCreateAccount(ctx, id)
		require.NoError(t, err)
	}
}

func mustPot(t *testing.T, store *Store, potID, ownerID string) {
	t.Helper()
	require.NoError(t, store.UpsertPot(context.Background(), &models.Pot{
		AccountID:               potID,
		DeployerID:              ownerID,
		OwnerID:                 ownerID,
		MinMatchingPoolDonation: "0",
		DeployedAt:              time.Now().UTC(),
	}))
}

func TestUpsertDonationIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	donor := uniqueID("donor.near")
	recipient := uniqueID("project.near")
	pot := uniqueID("pot.near")
	mustAccounts(t, store, donor, recipient, pot, models.NativeTokenID)
	_, _, err := store.GetOrCreateToken(ctx, models.NativeTokenID)
	require.NoError(t, err)
	mustPot(t, store, pot, donor)

	onChain := time.Now().UnixNano()
	donation := func() *models.Donation {
		return &models.Donation{
			OnChainID:   onChain,
			DonorID:     donor,
			TotalAmount: "1000000000000000000000000",
			NetAmount:   "975000000000000000000000",
			TokenID:     models.NativeTokenID,
			PotID:       &pot,
			DonatedAt:   time.Now().UTC(),
			RecipientID: &recipient,
			ProtocolFee: "25000000000000000000000",
		}
	}

	first, err := store.UpsertDonation(ctx, donation())
	require.NoError(t, err)
	replay, err := store.UpsertDonation(ctx, donation())
	require.NoError(t, err)
	assert.Equal(t, first, replay)

	// A direct donation reusing the same on-chain id lives in its own
	// uniqueness scope and must become a distinct row.
	direct := donation()
	direct.PotID = nil
	directID, err := store.UpsertDonation(ctx, direct)
	require.NoError(t, err)
	assert.NotEqual(t, first, directID)

	directReplay, err := store.UpsertDonation(ctx, direct)
	require.NoError(t, err)
	assert.Equal(t, directID, directReplay)
}

func TestMarkPayoutPaidCreatesMissingRow(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	pot := uniqueID("pot.near")
	recipient := uniqueID("project.near")
	mustAccounts(t, store, pot, recipient, models.NativeTokenID)
	_, _, err := store.GetOrCreateToken(ctx, models.NativeTokenID)
	require.NoError(t, err)
	mustPot(t, store, pot, recipient)

	// No set-payouts row exists; the transfer must create one.
	paidAt := time.Now().UTC().Truncate(time.Millisecond)
	id, err := store.MarkPayoutPaid(ctx, pot, recipient, "5000", models.NativeTokenID, "tx1", paidAt)
	require.NoError(t, err)

	p, found, err := store.GetPayout(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, p.PaidAt)
	assert.True(t, p.PaidAt.Equal(paidAt))
	require.NotNil(t, p.TxHash)
	assert.Equal(t, "tx1", *p.TxHash)

	// Redelivery converges on the same row.
	again, err := store.MarkPayoutPaid(ctx, pot, recipient, "5000", models.NativeTokenID, "tx1", paidAt)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestUpsertProviderSentinelAssignsFreshIDs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	registry := uniqueID("nadabot.near")
	owner := uniqueID("owner.near")
	mustAccounts(t, store, registry, owner)
	require.NoError(t, store.UpsertNadabotRegistry(ctx, &models.NadabotRegistry{
		AccountID: registry,
		OwnerID:   owner,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}))

	provider := func(name string) *models.Provider {
		return &models.Provider{
			OnChainID:    models.ProviderSentinelID,
			RegistryID:   registry,
			ContractID:   "checker.near",
			MethodName:   "is_human",
			Name:         name,
			SubmittedAt:  time.Now().UTC(),
			AccountIDArg: "account_id",
		}
	}

	first, err := store.UpsertProvider(ctx, provider("first"))
	require.NoError(t, err)
	second, err := store.UpsertProvider(ctx, provider("second"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// The sentinel id itself is never stored.
	_, found, err := store.ProviderByOnChainID(ctx, registry, models.ProviderSentinelID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetApplicationStatusKeepsHistory(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	pot := uniqueID("pot.near")
	applicant := uniqueID("project.near")
	reviewer := uniqueID("chef.near")
	mustAccounts(t, store, pot, applicant, reviewer)
	mustPot(t, store, pot, reviewer)

	appID, err := store.UpsertPotApplication(ctx, &models.PotApplication{
		PotID:       pot,
		ApplicantID: applicant,
		Status:      models.ApplicationPending,
		SubmittedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.SetApplicationStatus(ctx, &models.PotApplicationReview{
		ApplicationID: appID,
		ReviewerID:    reviewer,
		Status:        models.ApplicationInReview,
		ReviewedAt:    base,
	}))
	approval := &models.PotApplicationReview{
		ApplicationID: appID,
		ReviewerID:    reviewer,
		Status:        models.ApplicationApproved,
		ReviewedAt:    base.Add(time.Minute),
	}
	require.NoError(t, store.SetApplicationStatus(ctx, approval))

	// Replaying a review is a no-op, distinct transitions accumulate.
	require.NoError(t, store.SetApplicationStatus(ctx, approval))

	reviews, err := store.ApplicationReviews(ctx, appID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, models.ApplicationInReview, reviews[0].Status)
	assert.Equal(t, models.ApplicationApproved, reviews[1].Status)

	app, found, err := store.GetPotApplication(ctx, pot, applicant)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.ApplicationApproved, app.Status)
	require.NotNil(t, app.UpdatedAt)
}
