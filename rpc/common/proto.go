package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Proof fields
	DocHash     string `json:"doc_hash,omitempty"`    // Used for: Register, Verify, GetProof
	Owner       string `json:"owner,omitempty"`       // Used for: Register (request), proof responses
	Description string `json:"description,omitempty"` // Used for: Register (request), proof responses
	Timestamp   uint64 `json:"timestamp,omitempty"`   // Used for: proof responses

	// Stats fields
	Total uint64 `json:"total,omitempty"` // Used for: GetStats responses

	// Response only fields
	Ok   bool          `json:"ok,omitempty"`   // Used for: Register, GetProof responses
	Code store.RetCode `json:"code,omitempty"` // Return code of a failed operation
	Err  string        `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: DBInfo responses (json encoded db.DatabaseInfo)
}

// Proof returns the proof carried by a response message.
func (m *Message) Proof() registry.DocumentProof {
	return registry.DocumentProof{
		DocHash:     m.DocHash,
		Owner:       m.Owner,
		Timestamp:   m.Timestamp,
		Description: m.Description,
	}
}

// AsError rebuilds the error carried by a response message, nil if there is none.
func (m *Message) AsError() error {
	if m.Err == "" && m.Code == store.RetCSuccess {
		return nil
	}
	code := m.Code
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// withProof copies the proof into the message
func (m *Message) withProof(p registry.DocumentProof) *Message {
	m.DocHash = p.DocHash
	m.Owner = p.Owner
	m.Timestamp = p.Timestamp
	m.Description = p.Description
	return m
}

// withErr sets the error fields of the message
func (m *Message) withErr(err error) *Message {
	if err == nil {
		return m
	}
	m.Err = err.Error()
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		m.Code = storeErr.Code
		m.Err = storeErr.Msg
	} else {
		m.Code = store.FromRegistryError(err).Code
	}
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRegisterRequest creates a new Register request
func NewRegisterRequest(docHash, owner, description string) *Message {
	return &Message{
		MsgType:     MsgTRegister,
		DocHash:     docHash,
		Owner:       owner,
		Description: description,
	}
}

// NewRegisterResponse creates a new Register response
func NewRegisterResponse(proof registry.DocumentProof, err error) *Message {
	msg := &Message{
		MsgType: MsgTRegister,
		Ok:      err == nil,
	}
	if err == nil {
		msg.withProof(proof)
	}
	return msg.withErr(err)
}

// NewVerifyRequest creates a new Verify request
func NewVerifyRequest(docHash string) *Message {
	return &Message{
		MsgType: MsgTVerify,
		DocHash: docHash,
	}
}

// NewVerifyResponse creates a new Verify response. An absent proof travels as the sentinel.
func NewVerifyResponse(proof registry.DocumentProof, err error) *Message {
	msg := &Message{
		MsgType: MsgTVerify,
	}
	if err == nil {
		msg.withProof(proof)
		msg.Ok = proof.Exists()
	}
	return msg.withErr(err)
}

// NewGetProofRequest creates a new GetProof request
func NewGetProofRequest(docHash string) *Message {
	return &Message{
		MsgType: MsgTGetProof,
		DocHash: docHash,
	}
}

// NewGetProofResponse creates a new GetProof response
func NewGetProofResponse(proof registry.DocumentProof, found bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTGetProof,
		Ok:      found,
	}
	if err == nil {
		if !found {
			proof = registry.NotFound()
		}
		msg.withProof(proof)
	}
	return msg.withErr(err)
}

// NewGetStatsRequest creates a new GetStats request
func NewGetStatsRequest() *Message {
	return &Message{
		MsgType: MsgTGetStats,
	}
}

// NewGetStatsResponse creates a new GetStats response
func NewGetStatsResponse(stats registry.ProofStats, err error) *Message {
	msg := &Message{
		MsgType: MsgTGetStats,
		Total:   stats.TotalDocuments,
	}
	return msg.withErr(err)
}

// NewDBInfoRequest creates a new DBInfo request
func NewDBInfoRequest() *Message {
	return &Message{
		MsgType: MsgTDBInfo,
	}
}

// NewDBInfoResponse creates a new DBInfo response
func NewDBInfoResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTDBInfo,
		Meta:    meta,
	}
	return msg.withErr(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code store.RetCode, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    code,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTRegister:
		return "register"
	case MsgTVerify:
		return "verify"
	case MsgTGetProof:
		return "getProof"
	case MsgTGetStats:
		return "getStats"
	case MsgTDBInfo:
		return "dbInfo"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "register":
		*t = MsgTRegister
	case "verify":
		*t = MsgTVerify
	case "getProof":
		*t = MsgTGetProof
	case "getStats":
		*t = MsgTGetStats
	case "dbInfo":
		*t = MsgTDBInfo
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	case "unknown":
		*t = MsgTUnknown
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTRegister // Register a document hash
	MsgTVerify   // Verify a document hash (sentinel if absent)
	MsgTGetProof // Get the proof of a document hash
	MsgTGetStats // Get the registry counters
	MsgTDBInfo   // Get information about the underlying database
)
