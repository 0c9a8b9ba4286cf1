package decoder

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/potlock-network/potlock-indexer/pkg/near"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successOutcome(logs ...string) near.ExecutionOutcome {
	ok := ""
	return near.ExecutionOutcome{
		Logs:   logs,
		Status: near.OutcomeStatus{SuccessValue: &ok},
		TxHash: "tx-1",
	}
}

func failedOutcome(logs ...string) near.ExecutionOutcome {
	return near.ExecutionOutcome{
		Logs:   logs,
		Status: near.OutcomeStatus{Failure: []byte(`{"kind":"FunctionCallError"}`)},
	}
}

func callAction(method, argsJSON string) near.Action {
	return near.Action{
		MethodName: method,
		Args:       base64.StdEncoding.EncodeToString([]byte(argsJSON)),
		Deposit:    "1000",
	}
}

func testBlock(outcomes ...near.ReceiptOutcome) *near.Block {
	return &near.Block{
		Header: near.BlockHeader{
			Height:      120_000_000,
			Hash:        "abc",
			TimestampNs: uint64(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixNano()),
		},
		Shards: []near.Shard{{ReceiptExecutionOutcomes: outcomes}},
	}
}

func TestDecodeBlockMarkedLog(t *testing.T) {
	block := testBlock(near.ReceiptOutcome{
		Receipt: near.Receipt{
			ReceiptID:  "r1",
			SignerID:   "alice.near",
			ReceiverID: "donate.potlock.near",
		},
		Outcome: successOutcome(
			"plain log line, no marker",
			`EVENT_JSON:{"standard":"potlock","version":"1.0.0","event":"donation","data":[{"id":7}]}`,
		),
	})

	events := DecodeBlock(block)
	require.Len(t, events, 1)
	assert.Equal(t, KindDirectDonation, events[0].Kind)
	assert.JSONEq(t, `{"id":7}`, string(events[0].Payload))
	assert.Equal(t, "alice.near", events[0].Ctx.SignerID)
	assert.Equal(t, "donate.potlock.near", events[0].Ctx.ReceiverID)
	assert.Equal(t, uint64(120_000_000), events[0].Ctx.BlockHeight)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), events[0].Ctx.BlockTime)
}

func TestDecodeBlockMultiEntryData(t *testing.T) {
	block := testBlock(near.ReceiptOutcome{
		Receipt: near.Receipt{ReceiptID: "r1", SignerID: "a.near", ReceiverID: "pot.near"},
		Outcome: successOutcome(
			`EVENT_JSON:{"standard":"potlock","version":"1.0.0","event":"pot_donation","data":[{"id":1},{"id":2}]}`,
		),
	})

	events := DecodeBlock(block)
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"id":1}`, string(events[0].Payload))
	assert.JSONEq(t, `{"id":2}`, string(events[1].Payload))
}

func TestDecodeBlockSkipsFailedReceipts(t *testing.T) {
	block := testBlock(
		near.ReceiptOutcome{
			Receipt: near.Receipt{
				ReceiptID: "r1", SignerID: "a.near", ReceiverID: "pot.near",
				Actions: []near.Action{callAction("donate", `{"id":1}`)},
			},
			Outcome: failedOutcome(
				`EVENT_JSON:{"standard":"potlock","version":"1.0.0","event":"donation","data":[{"id":1}]}`,
			),
		},
		near.ReceiptOutcome{
			Receipt: near.Receipt{ReceiptID: "r2", SignerID: "b.near", ReceiverID: "pot.near"},
			Outcome: successOutcome(
				`EVENT_JSON:{"standard":"potlock","version":"1.0.0","event":"donation","data":[{"id":2}]}`,
			),
		},
	)

	events := DecodeBlock(block)
	require.Len(t, events, 1)
	assert.Equal(t, "r2", events[0].Ctx.ReceiptID)
}

func TestDecodeBlockSkipsMalformedLogLine(t *testing.T) {
	block := testBlock(near.ReceiptOutcome{
		Receipt: near.Receipt{ReceiptID: "r1", SignerID: "a.near", ReceiverID: "pot.near"},
		Outcome: successOutcome(
			`EVENT_JSON:{not valid json`,
			`EVENT_JSON:{"standard":"potlock","version":"1.0.0","event":"donation","data":[{"id":9}]}`,
		),
	})

	events := DecodeBlock(block)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"id":9}`, string(events[0].Payload))
}

func TestDecodeBlockIgnoresUnknownEventNames(t *testing.T) {
	block := testBlock(near.ReceiptOutcome{
		Receipt: near.Receipt{
			ReceiptID: "r1", SignerID: "a.near", ReceiverID: "pot.near",
			Actions: []near.Action{callAction("some_future_method", `{"x":1}`)},
		},
		Outcome: successOutcome(
			`EVENT_JSON:{"standard":"potlock","version":"1.0.0","event":"some_future_event","data":[{"x":1}]}`,
		),
	})

	assert.Empty(t, DecodeBlock(block))
}

func TestDecodeBlockActions(t *testing.T) {
	block := testBlock(near.ReceiptOutcome{
		Receipt: near.Receipt{
			ReceiptID: "r1", SignerID: "a.near", ReceiverID: "pot.near",
			Actions: []near.Action{
				{MethodName: "donate", Args: "%%% not base64 %%%"},
				callAction("donate", `{"message":"hi"}`),
			},
		},
		Outcome: successOutcome(),
	})

	events := DecodeBlock(block)
	require.Len(t, events, 1)
	assert.Equal(t, KindPotDonation, events[0].Kind)
	assert.JSONEq(t, `{"message":"hi"}`, string(events[0].Payload))
	assert.Equal(t, "1000", events[0].Ctx.Deposit)
}

func TestDecodeBlockLogsBeforeActions(t *testing.T) {
	block := testBlock(near.ReceiptOutcome{
		Receipt: near.Receipt{
			ReceiptID: "r1", SignerID: "a.near", ReceiverID: "pot.near",
			Actions: []near.Action{callAction("apply", `{"message":"pls"}`)},
		},
		Outcome: successOutcome(
			`EVENT_JSON:{"standard":"potlock","version":"1.0.0","event":"pot_deploy","data":[{"pot":"x"}]}`,
		),
	})

	events := DecodeBlock(block)
	require.Len(t, events, 2)
	assert.Equal(t, KindPotDeploy, events[0].Kind)
	assert.Equal(t, KindNewApplication, events[1].Kind)
}

func TestDecodeBlockSignerFallsBackToPredecessor(t *testing.T) {
	block := testBlock(near.ReceiptOutcome{
		Receipt: near.Receipt{
			ReceiptID:     "r1",
			PredecessorID: "relayer.near",
			ReceiverID:    "pot.near",
			Actions:       []near.Action{callAction("upvote", `{"list_id":1}`)},
		},
		Outcome: successOutcome(),
	})

	events := DecodeBlock(block)
	require.Len(t, events, 1)
	assert.Equal(t, "relayer.near", events[0].Ctx.SignerID)
}

func TestKindsListsEveryConst(t *testing.T) {
	seen := make(map[EventKind]bool, len(Kinds))
	for _, k := range Kinds {
		assert.False(t, seen[k], "duplicate kind %s", k)
		seen[k] = true
	}
	for _, k := range logKinds {
		assert.True(t, seen[k], "log kind %s missing from Kinds", k)
	}
	for _, k := range methodKinds {
		assert.True(t, seen[k], "method kind %s missing from Kinds", k)
	}
}
