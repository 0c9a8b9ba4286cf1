package near

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Block is the per-height payload served by the streamer gateway. It
// mirrors the lake format: a header plus one entry per shard, each
// carrying the receipt execution outcomes produced in that shard.
type Block struct {
	Header BlockHeader `json:"block"`
	Shards []Shard     `json:"shards"`
}

// BlockHeader carries the height and the block timestamp in nanoseconds
// since epoch, as emitted by the chain.
type BlockHeader struct {
	Height      uint64 `json:"height"`
	Hash        string `json:"hash"`
	TimestampNs uint64 `json:"timestamp_nanosec,string"`
}

// Time converts the nanosecond header timestamp to a time.Time.
func (h BlockHeader) Time() time.Time {
	return time.Unix(0, int64(h.TimestampNs)).UTC()
}

// Shard holds the receipt execution outcomes of a single shard.
type Shard struct {
	ShardID                  uint64           `json:"shard_id"`
	ReceiptExecutionOutcomes []ReceiptOutcome `json:"receipt_execution_outcomes"`
}

// ReceiptOutcome pairs a receipt with its execution outcome.
type ReceiptOutcome struct {
	Receipt Receipt          `json:"receipt"`
	Outcome ExecutionOutcome `json:"execution_outcome"`
}

// Receipt is an action receipt: who signed it, which contract receives
// it, and the list of actions it carries.
type Receipt struct {
	ReceiptID     string   `json:"receipt_id"`
	PredecessorID string   `json:"predecessor_id"`
	ReceiverID    string   `json:"receiver_id"`
	SignerID      string   `json:"signer_id"`
	Actions       []Action `json:"actions"`
}

// Action is a single function call within a receipt. Args is the
// base64-encoded JSON argument blob.
type Action struct {
	MethodName string `json:"method_name"`
	Args       string `json:"args"`
	Deposit    string `json:"deposit"`
	Gas        uint64 `json:"gas"`
}

// DecodeArgs decodes the base64 argument blob into raw JSON.
func (a Action) DecodeArgs() (json.RawMessage, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Args)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// ExecutionOutcome is the result of executing a receipt: the emitted
// log lines plus a status variant.
type ExecutionOutcome struct {
	Logs   []string        `json:"logs"`
	Status OutcomeStatus   `json:"status"`
	TxHash string          `json:"tx_hash,omitempty"`
	Meta   json.RawMessage `json:"metadata,omitempty"`
}

// OutcomeStatus is the status variant of an execution outcome. Exactly
// one field is set.
type OutcomeStatus struct {
	SuccessValue     *string         `json:"SuccessValue,omitempty"`
	SuccessReceiptID *string         `json:"SuccessReceiptId,omitempty"`
	Failure          json.RawMessage `json:"Failure,omitempty"`
	Unknown          json.RawMessage `json:"Unknown,omitempty"`
}

// Succeeded reports whether the receipt executed successfully. Failed
// on-chain calls never produce indexable events.
func (s OutcomeStatus) Succeeded() bool {
	return s.SuccessValue != nil || s.SuccessReceiptID != nil
}
