package models

import "encoding/json"

// TransactionSpec describes a Move call handed to the signer. Arguments are
// object IDs, or pure values when prefixed by the signer's conventions.
type TransactionSpec struct {
	Sender        string   `json:"sender"`
	Target        string   `json:"target"`
	TypeArguments []string `json:"type_arguments,omitempty"`
	Arguments     []any    `json:"arguments"`
	// Payment, when non-zero, is split off the gas coin and passed as the last argument.
	Payment uint64 `json:"payment,omitempty"`
	// TransferResultTo receives the objects returned by the call.
	TransferResultTo string `json:"transfer_result_to,omitempty"`
}

type SubmitResult struct {
	Digest string `json:"digest"`
	Status string `json:"status"`
}

type OutcomeOptions struct {
	ShowEffects       bool
	ShowEvents        bool
	ShowObjectChanges bool
}

type TransactionOutcome struct {
	Digest        string         `json:"digest"`
	Status        string         `json:"status"`
	Events        []LedgerEvent  `json:"events"`
	ObjectChanges []ObjectChange `json:"object_changes"`
}

type LedgerEvent struct {
	Type       string          `json:"type"`
	ParsedJSON json.RawMessage `json:"parsed_json"`
}

type ObjectChange struct {
	Type       string `json:"type"`
	ObjectID   string `json:"object_id"`
	ObjectType string `json:"object_type"`
}

type LedgerObject struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Version uint64          `json:"version"`
	Fields  json.RawMessage `json:"fields"`
}
