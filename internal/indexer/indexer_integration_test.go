package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/potlock-network/potlock-indexer/pkg/db/postgres"
	"github.com/potlock-network/potlock-indexer/pkg/near"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore connects to the database named by TEST_POSTGRES_URL and
// ensures the schema; tests skip without it.
func testStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	store, err := postgres.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.InitSchema(ctx))
	return store
}

// viewGateway serves /v1/view-function, dispatching on method name.
// Unhandled methods 404 so the caller exercises its fallback path.
func viewGateway(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/view-function" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			ContractID string `json:"contract_id"`
			Method     string `json:"method_name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := results[req.Method]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"result": %s}`, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRPC(srv *httptest.Server) *near.Client {
	return near.NewWithOpts(near.Opts{
		Endpoints: []string{srv.URL},
		RPS:       1000,
		Burst:     1000,
	})
}

// eventBlock wraps one successful receipt carrying marked log lines.
func eventBlock(height uint64, signer, receiver string, logs ...string) *near.Block {
	success := ""
	return &near.Block{
		Header: near.BlockHeader{
			Height:      height,
			TimestampNs: uint64(time.Now().UnixNano()),
		},
		Shards: []near.Shard{{
			ReceiptExecutionOutcomes: []near.ReceiptOutcome{{
				Receipt: near.Receipt{
					ReceiptID:  fmt.Sprintf("receipt-%d", height),
					SignerID:   signer,
					ReceiverID: receiver,
				},
				Outcome: near.ExecutionOutcome{
					Logs:   logs,
					Status: near.OutcomeStatus{SuccessValue: &success},
					TxHash: fmt.Sprintf("tx-%d", height),
				},
			}},
		}},
	}
}

func TestApplyBlockDonationMaterializesUnseenPot(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	suffix := time.Now().UnixNano()
	pot := fmt.Sprintf("t%d.pot.near", suffix)
	owner := fmt.Sprintf("t%d.owner.near", suffix)
	donor := fmt.Sprintf("t%d.donor.near", suffix)
	project := fmt.Sprintf("t%d.project.near", suffix)

	// The pot was deployed before the indexing start height: no deploy
	// event was seen, but its config is still readable on chain.
	srv := viewGateway(t, map[string]string{
		"get_config": fmt.Sprintf(
			`{"owner": %q, "deployed_by": %q, "pot_name": "Retro Pot", "min_matching_pool_donation_amount": "1"}`,
			owner, owner),
	})
	idx := New(store, testRPC(srv), NopTaskQueue{})

	donation := fmt.Sprintf(
		`{"id": 7, "donor_id": %q, "total_amount": "1000000000000000000000000", "protocol_fee": "0", "recipient_id": %q}`,
		donor, project)
	block := eventBlock(1_000_000, donor, pot,
		`EVENT_JSON:{"standard": "potlock", "version": "1.0.0", "event": "pot_donation", "data": [`+donation+`]}`)

	idx.ApplyBlock(ctx, block)

	exists, err := store.PotExists(ctx, pot)
	require.NoError(t, err)
	assert.True(t, exists)

	totals, err := store.DonationTotalsForPot(ctx, pot)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), totals.Count)
}

func TestApplyBlockVoteMaterializesUnseenRound(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	suffix := time.Now().UnixNano()
	voter := fmt.Sprintf("t%d.voter.near", suffix)
	contract := fmt.Sprintf("t%d.rounds.near", suffix)
	roundID := uint64(suffix)

	// The round contract predates indexing and its state view is not
	// served either, so the fallback row carries the event context.
	srv := viewGateway(t, nil)
	idx := New(store, testRPC(srv), NopTaskQueue{})

	vote := fmt.Sprintf(`{"round_id": %d, "voter": %q, "picks": [{"pair_id": 1, "voted_project": %d}]}`,
		roundID, voter, suffix)
	block := eventBlock(2_000_000, voter, contract,
		`EVENT_JSON:{"standard": "potlock", "version": "1.0.0", "event": "vote", "data": [`+vote+`]}`)

	idx.ApplyBlock(ctx, block)

	exists, err := store.RoundExists(ctx, roundID)
	require.NoError(t, err)
	assert.True(t, exists)
}
