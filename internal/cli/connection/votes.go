package connection

import (
	"bufio"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/yndnr/votifier-go/internal/core/domain"
	v1 "github.com/yndnr/votifier-go/internal/protocol/v1"
	v2 "github.com/yndnr/votifier-go/internal/protocol/v2"
	"github.com/yndnr/votifier-go/internal/session"
)

// Client errors.
var (
	ErrBadGreeting = errors.New("connection: unexpected greeting")
	ErrNotAcked    = errors.New("connection: vote not acknowledged")
)

// VoteClient speaks the vote protocol to a receiver. One client sends one
// vote; the receiver closes the connection afterwards.
type VoteClient struct {
	conn      net.Conn
	br        *bufio.Reader
	timeout   time.Duration
	greeting  string
	challenge string
}

// DialVote connects to addr and reads the greeting line.
func DialVote(ctx context.Context, addr string, timeout time.Duration) (*VoteClient, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &VoteClient{
		conn:    conn,
		br:      bufio.NewReader(conn),
		timeout: timeout,
	}

	if err := c.readGreeting(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *VoteClient) readGreeting() error {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	line, err := c.br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}

	c.greeting = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(c.greeting)
	if len(fields) < 2 || fields[0] != "VOTIFIER" {
		return fmt.Errorf("%w: %q", ErrBadGreeting, c.greeting)
	}
	if len(fields) >= 3 && strings.HasPrefix(c.greeting, session.GreetingPrefix+" ") {
		c.challenge = fields[2]
	}
	return nil
}

// Greeting returns the greeting line without its line terminator.
func (c *VoteClient) Greeting() string {
	return c.greeting
}

// Challenge returns the v2 challenge, or "" for a v1-only receiver.
func (c *VoteClient) Challenge() string {
	return c.challenge
}

// SendV1 encrypts the vote with the receiver's public key and sends it.
func (c *VoteClient) SendV1(vote domain.Vote, pub *rsa.PublicKey) error {
	block, err := v1.Encode(vote, pub)
	if err != nil {
		return fmt.Errorf("encode v1 vote: %w", err)
	}
	return c.write(block)
}

// SendV2 signs the vote with the service token and sends it. When
// waitAck is set it also waits for the receiver's acknowledgement.
func (c *VoteClient) SendV2(vote domain.Vote, secret []byte, waitAck bool) error {
	if c.challenge == "" {
		return fmt.Errorf("%w: no challenge in %q", ErrBadGreeting, c.greeting)
	}

	frame, err := v2.Encode(vote, secret, c.challenge)
	if err != nil {
		return fmt.Errorf("encode v2 vote: %w", err)
	}
	if err := c.write(frame); err != nil {
		return err
	}
	if !waitAck {
		return nil
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	line, err := c.br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAcked, err)
	}
	if strings.TrimSpace(line) != strings.TrimSpace(string(v2.Ack)) {
		return fmt.Errorf("%w: %q", ErrNotAcked, strings.TrimSpace(line))
	}
	return nil
}

// Write sends raw bytes, for probing a receiver with arbitrary input.
func (c *VoteClient) Write(p []byte) error {
	return c.write(p)
}

func (c *VoteClient) write(p []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(p); err != nil {
		return fmt.Errorf("write vote: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *VoteClient) Close() error {
	return c.conn.Close()
}
