package scheduler

import (
	"encoding/json"

	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// requestEnvelope is the JSON-RPC 2.0 request a scheduled firing publishes
// to its target agent's request topic, mirroring pkg/dispatch's wire shape
// (spec §6.2). sessionBehavior=RUN_BASED in metadata tells the agent to
// return its final text verbatim rather than as an incremental chat turn
// (spec §4.7 execution step 2).
type requestEnvelope struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  requestParams  `json:"params"`
	ReplyTo string         `json:"replyTo"`
}

type requestParams struct {
	ContextID string         `json:"contextId"`
	Message   requestMessage `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type requestMessage struct {
	Parts []model.MessagePart `json:"parts"`
}

type responseEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
