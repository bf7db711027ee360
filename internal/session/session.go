// Package session implements the per-connection vote state machine.
//
// A Session is a plain value owned by the goroutine serving one connection.
// It never touches the network: the server writes the greeting, feeds
// inbound bytes in arrival order and acts on the returned Step. That keeps
// every transition testable without a socket.
//
//	Greeting -> Differentiating -> Decoding -> Delivered | Rejected
package session

import (
	"fmt"
	"io"

	"github.com/yndnr/votifier-go/internal/core/domain"
	"github.com/yndnr/votifier-go/internal/core/keystore"
	"github.com/yndnr/votifier-go/internal/protocol"
	v1 "github.com/yndnr/votifier-go/internal/protocol/v1"
	v2 "github.com/yndnr/votifier-go/internal/protocol/v2"
)

// State is a session state.
type State int

const (
	StateGreeting State = iota
	StateDifferentiating
	StateDecoding
	StateDelivered
	StateRejected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateGreeting:
		return "greeting"
	case StateDifferentiating:
		return "differentiating"
	case StateDecoding:
		return "decoding"
	case StateDelivered:
		return "delivered"
	default:
		return "rejected"
	}
}

// GreetingPrefix starts every greeting line.
const GreetingPrefix = "VOTIFIER 2"

// Step is the outcome of feeding bytes to a session.
type Step struct {
	// Vote is set exactly once per session, on the transition to Delivered.
	Vote *domain.Vote
	// Err is set exactly once per session, on the transition to Rejected.
	Err error
	// Done reports that the session is terminal and the connection should close.
	Done bool
}

// Session is the state of one vote connection.
type Session struct {
	state     State
	version   domain.ProtocolVersion
	delivered bool
	buf       []byte
	challenge string
	keys      *keystore.Snapshot
}

// New creates a session bound to one keystore snapshot and challenge.
func New(keys *keystore.Snapshot, challenge string) *Session {
	return &Session{
		state:     StateGreeting,
		challenge: challenge,
		keys:      keys,
	}
}

// Greeting returns the banner line and moves the session to Differentiating.
func (s *Session) Greeting() []byte {
	if s.state == StateGreeting {
		s.state = StateDifferentiating
	}
	return []byte(GreetingPrefix + " " + s.challenge + "\n")
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Version returns the selected protocol version.
func (s *Session) Version() domain.ProtocolVersion { return s.version }

// Delivered reports whether the session produced its vote.
func (s *Session) Delivered() bool { return s.delivered }

// Buffered returns how many undecoded bytes the session holds.
func (s *Session) Buffered() int { return len(s.buf) }

func (s *Session) terminal() bool {
	return s.state == StateDelivered || s.state == StateRejected
}

// Feed appends inbound bytes and advances the state machine as far as the
// buffered data allows. Bytes fed to a terminal session are discarded.
func (s *Session) Feed(data []byte) Step {
	if s.terminal() {
		return Step{Done: true}
	}
	if s.state == StateGreeting {
		s.state = StateDifferentiating
	}
	s.buf = append(s.buf, data...)

	if s.state == StateDifferentiating {
		switch protocol.Differentiate(s.buf) {
		case protocol.NeedMore:
			return Step{}
		case protocol.V1:
			s.version = domain.ProtocolV1
		case protocol.V2:
			s.version = domain.ProtocolV2
		default:
			return s.reject(domain.ErrUnrecognizedProtocol)
		}
		s.state = StateDecoding
	}

	switch s.version {
	case domain.ProtocolV1:
		return s.decodeV1()
	default:
		return s.decodeV2()
	}
}

func (s *Session) decodeV1() Step {
	size := s.keys.BlockSize()
	if len(s.buf) > size {
		return s.reject(domain.ErrMalformedFrame.WithDetails(
			fmt.Sprintf("v1 frame overflow: %d bytes, block is %d", len(s.buf), size)))
	}
	if len(s.buf) < size {
		return Step{}
	}

	vote, err := v1.Decode(s.buf, s.keys.PrivateKey())
	if err != nil {
		return s.reject(err)
	}
	return s.deliver(vote)
}

func (s *Session) decodeV2() Step {
	n, err := v2.Scan(s.buf)
	if err != nil {
		return s.reject(err)
	}
	if n == 0 {
		return Step{}
	}

	vote, err := v2.Decode(s.buf[v2.HeaderLen:n], s.keys, s.challenge)
	if err != nil {
		return s.reject(err)
	}
	return s.deliver(vote)
}

// EndOfInput handles the peer closing its side before a terminal state.
func (s *Session) EndOfInput() Step {
	if s.terminal() {
		return Step{Done: true}
	}

	switch {
	case len(s.buf) == 0:
		return s.reject(domain.ErrIOFailure.WithDetails("connection closed before any frame").WithCause(io.ErrUnexpectedEOF))
	case s.state == StateDifferentiating:
		return s.reject(domain.ErrUnrecognizedProtocol.WithDetails("connection closed during differentiation"))
	default:
		return s.reject(domain.ErrMalformedFrame.WithDetails(
			fmt.Sprintf("truncated %s frame: %d bytes", s.version, len(s.buf))).WithCause(io.ErrUnexpectedEOF))
	}
}

// Abort rejects the session with a transport-level error such as a timeout.
func (s *Session) Abort(err *domain.VoteError) Step {
	if s.terminal() {
		return Step{Done: true}
	}
	return s.reject(err)
}

func (s *Session) deliver(vote domain.Vote) Step {
	s.state = StateDelivered
	s.delivered = true
	s.buf = nil
	return Step{Vote: &vote, Done: true}
}

func (s *Session) reject(err error) Step {
	s.state = StateRejected
	s.buf = nil
	return Step{Err: err, Done: true}
}
