// Package protocol implements the tagged-response protocol spoken between
// language models and the orchestrating code.
//
// A model answers with markup regions of the form
//
//	<SpecializedAgent>{"agentName": "Writer", "user_input": "..."}</SpecializedAgent>
//
// and the parser turns every region into an ActionRecord. The tag name is
// the action kind and the inner text is the payload, decoded as JSON when
// possible.
package protocol

import (
	"encoding/json"
	"strings"
)

// ActionKind is the kind of action a model asked for. It is the tag name
// taken verbatim, so unknown tags keep their spelling for diagnostics.
type ActionKind string

const (
	// KindThought is the model thinking out loud. It carries no work.
	KindThought ActionKind = "Thought"
	// KindInvokeTool asks for a data-provider tool call.
	KindInvokeTool ActionKind = "InvokeTool"
	// KindSpecializedAgent delegates a sub-task to a named specialist.
	KindSpecializedAgent ActionKind = "SpecializedAgent"
	// KindFinalAnswer ends the turn with an answer for the user.
	KindFinalAnswer ActionKind = "FinalAnswer"
	// KindRequestMoreInfo ends the turn asking the user for details.
	KindRequestMoreInfo ActionKind = "RequestMoreInfo"
	// KindNeedApproval ends the turn asking the user to confirm.
	KindNeedApproval ActionKind = "NeedApproval"
	// KindUnknown is used when no tag name is available at all.
	KindUnknown ActionKind = "Unknown"
)

// Known returns true if the kind is one of the protocol's tags.
func (k ActionKind) Known() bool {
	switch k {
	case KindThought, KindInvokeTool, KindSpecializedAgent,
		KindFinalAnswer, KindRequestMoreInfo, KindNeedApproval:
		return true
	default:
		return false
	}
}

// Terminal returns true for kinds that end a turn with user-facing content.
func (k ActionKind) Terminal() bool {
	switch k {
	case KindFinalAnswer, KindRequestMoreInfo, KindNeedApproval:
		return true
	default:
		return false
	}
}

// Payload field names used by the protocol.
const (
	FieldContent   = "content"
	FieldAgentName = "agentName"
	FieldUserInput = "user_input"
	FieldToolName  = "name"
	FieldSymbol    = "symbol"
)

// ActionRecord is one action parsed out of a model response.
type ActionRecord struct {
	// Kind is the action kind (the tag name).
	Kind ActionKind
	// Payload is the decoded JSON object, or {"content": text} when the
	// region did not hold a JSON object.
	Payload map[string]any
	// RawText is the inner text of the region. For the implicit fallback
	// record it is the whole model response.
	RawText string
	// ParseError is set when the payload could not be decoded as a JSON object.
	ParseError string
	// Implicit marks the synthetic FinalAnswer produced when a response
	// contained no tags at all.
	Implicit bool
}

// HasParseError reports whether the payload fell back to raw text.
func (r ActionRecord) HasParseError() bool {
	return r.ParseError != ""
}

// String returns the payload field as a string. Non-string values are
// rendered as JSON. Missing fields yield "" and false.
func (r ActionRecord) String(field string) (string, bool) {
	v, ok := r.Payload[field]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// Content returns the user-facing text of the record.
func (r ActionRecord) Content() string {
	if s, ok := r.String(FieldContent); ok {
		return strings.TrimSpace(s)
	}
	if len(r.Payload) > 0 {
		b, err := json.Marshal(r.Payload)
		if err == nil {
			return string(b)
		}
	}
	if r.Implicit {
		return strings.TrimSpace(r.RawText)
	}
	return ""
}
