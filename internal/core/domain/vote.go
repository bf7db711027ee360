package domain

import "fmt"

// Vote is a decoded vote notification.
//
// A Vote is only produced by a successful protocol decode and is never
// mutated afterwards; it is passed around by value.
type Vote struct {
	ServiceName string `json:"serviceName"`
	Username    string `json:"username"`
	Address     string `json:"address"`
	// Timestamp is kept exactly as the sender transmitted it.
	Timestamp string `json:"timestamp"`
}

// String implements fmt.Stringer.
func (v Vote) String() string {
	return fmt.Sprintf("Vote (from:%s username:%s address:%s timeStamp:%s)",
		v.ServiceName, v.Username, v.Address, v.Timestamp)
}

// ProtocolVersion identifies the wire protocol used by a connection.
type ProtocolVersion int

const (
	// ProtocolUnresolved means differentiation has not finished yet.
	ProtocolUnresolved ProtocolVersion = iota
	// ProtocolV1 is the legacy RSA-encrypted record.
	ProtocolV1
	// ProtocolV2 is the token-authenticated JSON record.
	ProtocolV2
)

// String implements fmt.Stringer.
func (p ProtocolVersion) String() string {
	switch p {
	case ProtocolV1:
		return "v1"
	case ProtocolV2:
		return "v2"
	default:
		return "unresolved"
	}
}
