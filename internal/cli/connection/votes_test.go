package connection

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/yndnr/votifier-go/internal/core/domain"
	v1 "github.com/yndnr/votifier-go/internal/protocol/v1"
	v2 "github.com/yndnr/votifier-go/internal/protocol/v2"
)

type staticTokens map[string][]byte

func (s staticTokens) Token(name string) ([]byte, bool) {
	t, ok := s[name]
	return t, ok
}

// fakeReceiver accepts one connection, writes greeting and hands the
// connection to handle.
func fakeReceiver(t *testing.T, greeting string, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.Write([]byte(greeting))
		if handle != nil {
			handle(c)
		}
	}()
	return ln.Addr().String()
}

var testVote = domain.Vote{ServiceName: "default", Username: "Steve", Address: "1.2.3.4", Timestamp: "2024-01-01T00:00:00Z"}

func TestDialVote_Greeting(t *testing.T) {
	addr := fakeReceiver(t, "VOTIFIER 2 abcdefghijklmnopqrstuvwxyz\n", nil)

	c, err := DialVote(context.Background(), addr, time.Second)
	if err != nil {
		t.Fatalf("DialVote() error = %v", err)
	}
	defer c.Close()

	if c.Greeting() != "VOTIFIER 2 abcdefghijklmnopqrstuvwxyz" {
		t.Errorf("Greeting() = %q", c.Greeting())
	}
	if c.Challenge() != "abcdefghijklmnopqrstuvwxyz" {
		t.Errorf("Challenge() = %q", c.Challenge())
	}
}

func TestDialVote_LegacyGreeting(t *testing.T) {
	addr := fakeReceiver(t, "VOTIFIER 1.9\n", nil)

	c, err := DialVote(context.Background(), addr, time.Second)
	if err != nil {
		t.Fatalf("DialVote() error = %v", err)
	}
	defer c.Close()

	if c.Challenge() != "" {
		t.Errorf("Challenge() = %q, want empty", c.Challenge())
	}
	if err := c.SendV2(testVote, []byte("k"), false); !errors.Is(err, ErrBadGreeting) {
		t.Errorf("SendV2() without challenge = %v, want ErrBadGreeting", err)
	}
}

func TestDialVote_BadGreeting(t *testing.T) {
	addr := fakeReceiver(t, "SSH-2.0-OpenSSH\n", nil)

	if _, err := DialVote(context.Background(), addr, time.Second); !errors.Is(err, ErrBadGreeting) {
		t.Errorf("DialVote() error = %v, want ErrBadGreeting", err)
	}
}

func TestSendV2_Acked(t *testing.T) {
	const challenge = "abcdefghijklmnopqrstuvwxyz"
	secret := []byte("s3cret")
	got := make(chan domain.Vote, 1)

	addr := fakeReceiver(t, "VOTIFIER 2 "+challenge+"\n", func(c net.Conn) {
		br := bufio.NewReader(c)
		header := make([]byte, v2.HeaderLen)
		if _, err := io.ReadFull(br, header); err != nil {
			return
		}
		body := make([]byte, int(header[2])<<8|int(header[3]))
		if _, err := io.ReadFull(br, body); err != nil {
			return
		}
		vote, err := v2.Decode(body, staticTokens{"default": secret}, challenge)
		if err != nil {
			return
		}
		got <- vote
		c.Write(v2.Ack)
	})

	c, err := DialVote(context.Background(), addr, 2*time.Second)
	if err != nil {
		t.Fatalf("DialVote() error = %v", err)
	}
	defer c.Close()

	if err := c.SendV2(testVote, secret, true); err != nil {
		t.Fatalf("SendV2() error = %v", err)
	}
	if v := <-got; v != testVote {
		t.Errorf("receiver decoded %+v, want %+v", v, testVote)
	}
}

func TestSendV2_NotAcked(t *testing.T) {
	addr := fakeReceiver(t, "VOTIFIER 2 abcdefghijklmnopqrstuvwxyz\n", func(c net.Conn) {
		io.ReadFull(c, make([]byte, v2.HeaderLen))
	})

	c, err := DialVote(context.Background(), addr, time.Second)
	if err != nil {
		t.Fatalf("DialVote() error = %v", err)
	}
	defer c.Close()

	if err := c.SendV2(testVote, []byte("wrong"), true); !errors.Is(err, ErrNotAcked) {
		t.Errorf("SendV2() error = %v, want ErrNotAcked", err)
	}
}

func TestSendV1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	got := make(chan domain.Vote, 1)

	addr := fakeReceiver(t, "VOTIFIER 2 abcdefghijklmnopqrstuvwxyz\n", func(c net.Conn) {
		block := make([]byte, key.Size())
		if _, err := io.ReadFull(c, block); err != nil {
			return
		}
		vote, err := v1.Decode(block, key)
		if err != nil {
			return
		}
		got <- vote
	})

	c, err := DialVote(context.Background(), addr, 2*time.Second)
	if err != nil {
		t.Fatalf("DialVote() error = %v", err)
	}
	defer c.Close()

	if err := c.SendV1(testVote, &key.PublicKey); err != nil {
		t.Fatalf("SendV1() error = %v", err)
	}

	select {
	case v := <-got:
		if v != testVote {
			t.Errorf("receiver decoded %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not decode the vote")
	}
}
