// Package protocol defines the graphql-ws (legacy) wire envelope and the
// codec that decodes/encodes it. It mirrors the teacher's WSMessage type
// (internal/graphql/subscription/websocket.go) but targets the legacy
// message names rather than graphql-transport-ws.
package protocol

import (
	"encoding/json"

	"graphqlws/internal/protoerr"
)

// Client->server message types.
const (
	TypeConnectionInit      = "connection_init"
	TypeStart               = "start"
	TypeStop                = "stop"
	TypeConnectionTerminate = "connection_terminate"
)

// Server->client message types.
const (
	TypeConnectionAck   = "connection_ack"
	TypeConnectionError = "connection_error"
	TypeKeepAlive       = "ka"
	TypeData            = "data"
	TypeError           = "error"
	TypeComplete        = "complete"
)

// clientMessageTypes is the closed set of types a client may send.
var clientMessageTypes = map[string]bool{
	TypeConnectionInit:      true,
	TypeStart:               true,
	TypeStop:                true,
	TypeConnectionTerminate: true,
}

// IsKnownClientType reports whether typ is one of the recognized
// client->server message types.
func IsKnownClientType(typ string) bool {
	return clientMessageTypes[typ]
}

// Message is the wire envelope shared by every client and server frame:
// { type, id?, payload? }.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GraphQLRequest is the decoded payload of a "start" message.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLError is a single entry of a GraphQLResponse's errors list.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// GraphQLResponse is a single element of an executor's response sequence.
type GraphQLResponse struct {
	Data   interface{}    `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// HasErrors reports whether the response carries a non-empty errors list,
// which per spec.md §3 changes the outbound envelope type from "data" to
// "error".
func (r GraphQLResponse) HasErrors() bool {
	return len(r.Errors) > 0
}

// Decode parses a raw text frame into an envelope. It fails when the frame
// isn't valid JSON or lacks a string "type" field; it does not validate
// that type is a recognized value, so the handler can answer with a
// properly id-tagged connection_error instead (spec.md §4.A).
func Decode(frame []byte) (*Message, error) {
	var raw struct {
		Type    *string         `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, protoerr.NewEnvelopeDecodeError(err)
	}
	if raw.Type == nil {
		return nil, protoerr.NewEnvelopeDecodeError(nil)
	}
	return &Message{Type: *raw.Type, ID: raw.ID, Payload: raw.Payload}, nil
}

// DecodeGraphQLRequest re-decodes the payload of a "start" frame as a
// GraphQLRequest. Failure is scoped to operationID (spec.md §4.A).
func DecodeGraphQLRequest(operationID string, payload json.RawMessage) (*GraphQLRequest, error) {
	if len(payload) == 0 {
		return nil, protoerr.NewPayloadDecodeError(operationID, nil)
	}
	var req GraphQLRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, protoerr.NewPayloadDecodeError(operationID, err)
	}
	return &req, nil
}

// Encode is total: every outbound envelope serializes successfully.
// A marshal failure here would mean a programmer error (an un-serializable
// payload), so it panics rather than threading an impossible error back
// through every call site.
func Encode(msg Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		panic("protocol: outbound envelope failed to encode: " + err.Error())
	}
	return data
}

// Ack builds a connection_ack envelope.
func Ack() Message { return Message{Type: TypeConnectionAck} }

// KeepAlive builds a ka envelope.
func KeepAlive() Message { return Message{Type: TypeKeepAlive} }

// ConnectionError builds a connection_error envelope, id optional.
func ConnectionError(id string) Message { return Message{Type: TypeConnectionError, ID: id} }

// Complete builds a complete envelope for operation id.
func Complete(id string) Message { return Message{Type: TypeComplete, ID: id} }

// Data builds a data or error envelope for operation id depending on
// whether resp carries errors (spec.md §3).
func Data(id string, resp GraphQLResponse) Message {
	payload, _ := json.Marshal(resp)
	typ := TypeData
	if resp.HasErrors() {
		typ = TypeError
	}
	return Message{Type: typ, ID: id, Payload: payload}
}

// ErrorEnvelope builds an error envelope for operation id carrying a single
// message, used when a hook or the executor itself fails outright rather
// than the GraphQL response carrying structured errors.
func ErrorEnvelope(id string, message string) Message {
	resp := GraphQLResponse{Errors: []GraphQLError{{Message: message}}}
	payload, _ := json.Marshal(resp)
	return Message{Type: TypeError, ID: id, Payload: payload}
}
