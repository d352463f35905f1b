// Package claims implements the claim request/issuance/rejection exchange
// between a requester and its candidate issuers. Exchanges are append-only:
// a claim attempt gets a fresh request id, never an update.
package claims

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KindRequest   = "claim_request"
	KindIssuance  = "claim_issuance"
	KindRejection = "claim_rejection"
)

var ErrUnknownMessageKind = errors.New("unknown claim message kind")

// Request asks the listed issuers to issue a claim of the given type about
// the requester.
type Request struct {
	RequestID    string         `json:"requestId"`
	ClaimType    string         `json:"claimType"`
	Fields       map[string]any `json:"fields,omitempty"`
	Token        string         `json:"token"`
	RequesterDID string         `json:"requesterDid"`
	IssuerDIDs   []string       `json:"issuerDids"`
}

// Issuance answers a request with a signed attestation credential.
type Issuance struct {
	RequestID  string `json:"requestId"`
	IssuerDID  string `json:"issuerDid"`
	Credential string `json:"credential"`
	AcceptedBy string `json:"acceptedBy"`
}

// Rejection declines a request.
type Rejection struct {
	RequestID  string `json:"requestId"`
	IssuerDID  string `json:"issuerDid"`
	IsRejected bool   `json:"isRejected"`
}

type envelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// Message is a decoded inbound exchange message; exactly one of the three
// pointers is set, matching Kind.
type Message struct {
	Kind      string
	Request   *Request
	Issuance  *Issuance
	Rejection *Rejection
}

func encodeMessage(kind string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Body: raw})
}

// DecodeMessage parses one wire payload into a typed message.
func DecodeMessage(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Message{}, fmt.Errorf("decode claim envelope: %w", err)
	}
	msg := Message{Kind: env.Kind}
	switch env.Kind {
	case KindRequest:
		msg.Request = &Request{}
		return msg, json.Unmarshal(env.Body, msg.Request)
	case KindIssuance:
		msg.Issuance = &Issuance{}
		return msg, json.Unmarshal(env.Body, msg.Issuance)
	case KindRejection:
		msg.Rejection = &Rejection{}
		return msg, json.Unmarshal(env.Body, msg.Rejection)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessageKind, env.Kind)
	}
}
