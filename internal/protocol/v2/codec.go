// Package v2 implements the token-authenticated vote record.
//
// Wire layout:
//
//	0x73 0x3A | uint16 big-endian length L | L bytes of JSON envelope
//
// The envelope is {"payload": "<json>", "signature": "<base64>"}. The
// payload is itself a JSON document carried as a string:
//
//	{"serviceName": ..., "username": ..., "address": ..., "timestamp": ..., "challenge": ...}
//
// The signature is HMAC-SHA256 keyed with the service's token over the
// payload string's bytes exactly as transmitted, so no re-serialization is
// involved in verification. The challenge must echo the one the receiver
// sent in its greeting.
package v2

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/yndnr/votifier-go/internal/core/domain"
	"github.com/yndnr/votifier-go/pkg/token"
)

// Frame constants.
const (
	MagicHi   byte = 0x73
	MagicLo   byte = 0x3A
	HeaderLen      = 4

	// MaxBodyLen caps the envelope size. Real votes are a few hundred bytes.
	MaxBodyLen = 8192
)

// Ack is written back after a v2 vote was accepted.
var Ack = []byte("{\"status\":\"ok\"}\r\n")

// ErrFrameTooLarge is returned by Encode when the envelope exceeds MaxBodyLen.
var ErrFrameTooLarge = errors.New("v2: frame too large")

// TokenLookup resolves a service name to its shared secret.
type TokenLookup interface {
	Token(serviceName string) ([]byte, bool)
}

type envelope struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type inboundPayload struct {
	ServiceName string          `json:"serviceName"`
	Username    string          `json:"username"`
	Address     string          `json:"address"`
	Timestamp   json.RawMessage `json:"timestamp"`
	Challenge   string          `json:"challenge"`
}

type outboundPayload struct {
	ServiceName string `json:"serviceName"`
	Username    string `json:"username"`
	Address     string `json:"address"`
	Timestamp   string `json:"timestamp"`
	Challenge   string `json:"challenge"`
}

// unknownServiceKey keys the MAC computed for service names that have no
// token, so that path does the same work as a wrong signature.
var unknownServiceKey = make([]byte, sha256.Size)

// Scan inspects buffered bytes. It returns the total frame length once the
// whole frame is buffered, 0 when more bytes are needed, or an error for a
// header that can never become a valid frame.
func Scan(buf []byte) (int, error) {
	if len(buf) >= 2 && (buf[0] != MagicHi || buf[1] != MagicLo) {
		return 0, domain.ErrMalformedFrame.WithDetails("v2 frame has wrong magic")
	}
	if len(buf) < HeaderLen {
		return 0, nil
	}

	n := int(binary.BigEndian.Uint16(buf[2:4]))
	if n == 0 || n > MaxBodyLen {
		return 0, domain.ErrMalformedFrame.WithDetails(fmt.Sprintf("v2 body length %d out of range", n))
	}
	if len(buf) < HeaderLen+n {
		return 0, nil
	}
	return HeaderLen + n, nil
}

// Decode authenticates a v2 envelope body (the bytes after the header) and
// returns the vote it carries.
//
// Unknown service names, bad signatures and wrong challenges all produce
// domain.ErrAuthenticationFailed with no further detail.
func Decode(body []byte, tokens TokenLookup, challenge string) (domain.Vote, error) {
	if !utf8.Valid(body) {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v2 body is not valid utf-8")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v2 envelope is not valid json").WithCause(err)
	}
	if env.Payload == "" || env.Signature == "" {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v2 envelope is missing payload or signature")
	}

	signature, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v2 signature is not base64").WithCause(err)
	}

	var p inboundPayload
	if err := json.Unmarshal([]byte(env.Payload), &p); err != nil {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v2 payload is not valid json").WithCause(err)
	}
	if p.ServiceName == "" {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v2 payload is missing serviceName")
	}

	secret, known := tokens.Token(p.ServiceName)
	if !known {
		secret = unknownServiceKey
	}
	expected := Sign([]byte(env.Payload), secret)
	macOK := hmac.Equal(expected, signature)
	challengeOK := token.Equal([]byte(p.Challenge), []byte(challenge))
	if !known || !macOK || !challengeOK {
		return domain.Vote{}, domain.ErrAuthenticationFailed
	}

	timestamp, err := timestampText(p.Timestamp)
	if err != nil {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v2 timestamp must be a string or number").WithCause(err)
	}
	if p.Username == "" {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v2 payload is missing username")
	}

	return domain.Vote{
		ServiceName: p.ServiceName,
		Username:    p.Username,
		Address:     p.Address,
		Timestamp:   timestamp,
	}, nil
}

// timestampText keeps a JSON string or number as opaque text.
func timestampText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Sign computes the v2 signature over payload bytes.
func Sign(payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// MarshalPayload renders the canonical payload for a vote: compact JSON
// with fields in fixed order.
func MarshalPayload(vote domain.Vote, challenge string) ([]byte, error) {
	return json.Marshal(outboundPayload{
		ServiceName: vote.ServiceName,
		Username:    vote.Username,
		Address:     vote.Address,
		Timestamp:   vote.Timestamp,
		Challenge:   challenge,
	})
}

// Encode builds a complete v2 frame for a vote.
func Encode(vote domain.Vote, secret []byte, challenge string) ([]byte, error) {
	payload, err := MarshalPayload(vote, challenge)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	body, err := json.Marshal(envelope{
		Payload:   string(payload),
		Signature: base64.StdEncoding.EncodeToString(Sign(payload, secret)),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if len(body) > MaxBodyLen {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, HeaderLen, HeaderLen+len(body))
	frame[0], frame[1] = MagicHi, MagicLo
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(body)))
	return append(frame, body...), nil
}
