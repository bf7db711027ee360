package session

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/yndnr/votifier-go/internal/core/domain"
	"github.com/yndnr/votifier-go/internal/core/keystore"
	v1 "github.com/yndnr/votifier-go/internal/protocol/v1"
	v2 "github.com/yndnr/votifier-go/internal/protocol/v2"
)

const testChallenge = "q3zpbm5kx7tq2ngf6ic4ipr4mu"

func testSnapshot(t *testing.T) *keystore.Snapshot {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	snap, err := keystore.NewSnapshot(key, map[string]string{"default": "s3cret"})
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}
	return snap
}

func v1Frame(t *testing.T, snap *keystore.Snapshot, vote domain.Vote) []byte {
	t.Helper()
	pub, _ := snap.KeyPair()
	block, err := v1.Encode(vote, pub)
	if err != nil {
		t.Fatalf("v1.Encode() error = %v", err)
	}
	return block
}

func v2Frame(t *testing.T, vote domain.Vote, secret string) []byte {
	t.Helper()
	frame, err := v2.Encode(vote, []byte(secret), testChallenge)
	if err != nil {
		t.Fatalf("v2.Encode() error = %v", err)
	}
	return frame
}

var steve = domain.Vote{
	ServiceName: "default",
	Username:    "Steve",
	Address:     "1.2.3.4",
	Timestamp:   "2024-01-01T00:00:00Z",
}

func TestGreeting(t *testing.T) {
	s := New(testSnapshot(t), testChallenge)
	if s.State() != StateGreeting {
		t.Fatalf("initial state = %v", s.State())
	}

	got := string(s.Greeting())
	if got != "VOTIFIER 2 "+testChallenge+"\n" {
		t.Errorf("Greeting() = %q", got)
	}
	if s.State() != StateDifferentiating {
		t.Errorf("state after greeting = %v, want differentiating", s.State())
	}
}

func TestV2_DeliversScenarioVote(t *testing.T) {
	s := New(testSnapshot(t), testChallenge)
	s.Greeting()

	step := s.Feed(v2Frame(t, steve, "s3cret"))
	if step.Err != nil {
		t.Fatalf("Feed() error = %v", step.Err)
	}
	if !step.Done || step.Vote == nil {
		t.Fatalf("Feed() = %+v, want delivered vote", step)
	}
	if *step.Vote != steve {
		t.Errorf("vote = %+v, want %+v", *step.Vote, steve)
	}
	if s.Version() != domain.ProtocolV2 || s.State() != StateDelivered || !s.Delivered() {
		t.Errorf("version=%v state=%v delivered=%v", s.Version(), s.State(), s.Delivered())
	}
}

func TestV1_Delivers(t *testing.T) {
	snap := testSnapshot(t)
	s := New(snap, testChallenge)
	s.Greeting()

	step := s.Feed(v1Frame(t, snap, steve))
	if step.Err != nil || step.Vote == nil || *step.Vote != steve {
		t.Fatalf("Feed() = %+v", step)
	}
	if s.Version() != domain.ProtocolV1 {
		t.Errorf("Version() = %v, want v1", s.Version())
	}
}

func TestByteAtATime(t *testing.T) {
	snap := testSnapshot(t)

	frames := map[string][]byte{
		"v1": v1Frame(t, snap, steve),
		"v2": v2Frame(t, steve, "s3cret"),
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			s := New(snap, testChallenge)
			s.Greeting()

			var last Step
			for i := range frame {
				last = s.Feed(frame[i : i+1])
				if last.Done && i != len(frame)-1 {
					t.Fatalf("session finished early at byte %d: %+v", i, last)
				}
			}
			if last.Vote == nil || *last.Vote != steve {
				t.Errorf("final step = %+v", last)
			}
		})
	}
}

func TestAtMostOneVote(t *testing.T) {
	s := New(testSnapshot(t), testChallenge)
	s.Greeting()

	frame := v2Frame(t, steve, "s3cret")
	votes := 0

	// Two frames in one chunk, then another frame in a later chunk.
	for _, chunk := range [][]byte{append(append([]byte(nil), frame...), frame...), frame} {
		step := s.Feed(chunk)
		if step.Vote != nil {
			votes++
		}
		if step.Err != nil {
			t.Errorf("unexpected error after delivery: %v", step.Err)
		}
		if !step.Done {
			t.Error("session should stay terminal")
		}
	}
	if votes != 1 {
		t.Errorf("votes delivered = %d, want 1", votes)
	}
	if s.Buffered() != 0 {
		t.Errorf("terminal session holds %d bytes", s.Buffered())
	}
}

func TestV1_Overflow(t *testing.T) {
	snap := testSnapshot(t)
	s := New(snap, testChallenge)
	s.Greeting()

	frame := append(v1Frame(t, snap, steve), 0x00)
	step := s.Feed(frame)
	if !errors.Is(step.Err, domain.ErrMalformedFrame) {
		t.Errorf("Feed() error = %v, want MalformedFrame", step.Err)
	}
	if step.Vote != nil {
		t.Error("overflowing frame must not deliver")
	}
}

func TestV1_ForeignKey(t *testing.T) {
	snap := testSnapshot(t)
	foreign := testSnapshot(t)

	// A foreign block occasionally passes PKCS#1 padding and then fails to
	// parse, so allow one MalformedFrame in the batch.
	const attempts = 8
	authFailures := 0
	for i := 0; i < attempts; i++ {
		s := New(snap, testChallenge)
		s.Greeting()
		step := s.Feed(v1Frame(t, foreign, steve))
		switch {
		case step.Vote != nil:
			t.Fatalf("attempt %d delivered %+v", i, *step.Vote)
		case errors.Is(step.Err, domain.ErrAuthenticationFailed):
			authFailures++
		case !errors.Is(step.Err, domain.ErrMalformedFrame):
			t.Fatalf("attempt %d: Feed() error = %v", i, step.Err)
		}
	}
	if authFailures < attempts-1 {
		t.Errorf("AuthenticationFailed for %d of %d attempts", authFailures, attempts)
	}
}

func TestV1_CiphertextWithTLSLeadingBytes(t *testing.T) {
	if testing.Short() {
		t.Skip("searches for a matching ciphertext")
	}
	snap := testSnapshot(t)
	pub, _ := snap.KeyPair()

	// About one block in 65536 starts with a TLS handshake record type.
	var block []byte
	for i := 0; i < 1<<22; i++ {
		b, err := v1.Encode(steve, pub)
		if err != nil {
			t.Fatalf("v1.Encode() error = %v", err)
		}
		if b[0] == 0x16 && b[1] == 0x03 {
			block = b
			break
		}
	}
	if block == nil {
		t.Fatal("no ciphertext starting with 16 03 found")
	}

	t.Run("whole", func(t *testing.T) {
		s := New(snap, testChallenge)
		s.Greeting()
		step := s.Feed(block)
		if step.Err != nil || step.Vote == nil || *step.Vote != steve {
			t.Fatalf("Feed(%x...) = %+v", block[:4], step)
		}
	})

	t.Run("byte at a time", func(t *testing.T) {
		s := New(snap, testChallenge)
		s.Greeting()
		var last Step
		for i := range block {
			last = s.Feed(block[i : i+1])
			if last.Done && i != len(block)-1 {
				t.Fatalf("session finished at byte %d: %+v", i, last)
			}
		}
		if last.Vote == nil || *last.Vote != steve {
			t.Errorf("final step = %+v", last)
		}
	})
}

func TestV2_Rejections(t *testing.T) {
	snap := testSnapshot(t)

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"wrong token", v2Frame(t, steve, "nope"), domain.ErrAuthenticationFailed},
		{"unknown service", v2Frame(t, domain.Vote{ServiceName: "ghost", Username: "u"}, "s3cret"), domain.ErrAuthenticationFailed},
		{"oversized length", []byte{0x73, 0x3A, 0xFF, 0xFF}, domain.ErrMalformedFrame},
		{"garbage body", []byte{0x73, 0x3A, 0x00, 0x03, 'a', 'b', 'c'}, domain.ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(snap, testChallenge)
			s.Greeting()
			step := s.Feed(tt.frame)
			if !errors.Is(step.Err, tt.want) {
				t.Errorf("Feed() error = %v, want %v", step.Err, tt.want)
			}
			if s.State() != StateRejected || !step.Done {
				t.Errorf("state = %v done = %v", s.State(), step.Done)
			}
		})
	}
}

func TestUnrecognizedProtocol(t *testing.T) {
	s := New(testSnapshot(t), testChallenge)
	s.Greeting()

	step := s.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
	if !errors.Is(step.Err, domain.ErrUnrecognizedProtocol) {
		t.Errorf("Feed() error = %v, want UnrecognizedProtocol", step.Err)
	}
	if s.Version() != domain.ProtocolUnresolved {
		t.Errorf("Version() = %v, want unresolved", s.Version())
	}

	// Further input is discarded without a second error.
	if again := s.Feed([]byte("more")); again.Err != nil || !again.Done {
		t.Errorf("Feed() after reject = %+v", again)
	}
}

func TestEndOfInput(t *testing.T) {
	snap := testSnapshot(t)
	frame := v1Frame(t, snap, steve)

	tests := []struct {
		name string
		fed  []byte
		want error
	}{
		{"nothing sent", nil, domain.ErrIOFailure},
		{"one byte", []byte{0x42}, domain.ErrUnrecognizedProtocol},
		{"truncated v1", frame[:100], domain.ErrMalformedFrame},
		{"truncated v2", v2Frame(t, steve, "s3cret")[:20], domain.ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(snap, testChallenge)
			s.Greeting()
			if len(tt.fed) > 0 {
				if step := s.Feed(tt.fed); step.Done {
					t.Fatalf("Feed() finished early: %+v", step)
				}
			}
			step := s.EndOfInput()
			if !errors.Is(step.Err, tt.want) || !step.Done {
				t.Errorf("EndOfInput() = %+v, want %v", step, tt.want)
			}
		})
	}
}

func TestAbort(t *testing.T) {
	s := New(testSnapshot(t), testChallenge)
	s.Greeting()
	s.Feed([]byte{0x73, 0x3A, 0x00})

	step := s.Abort(domain.ErrTimeout)
	if !errors.Is(step.Err, domain.ErrTimeout) || step.Vote != nil {
		t.Errorf("Abort() = %+v", step)
	}
	if s.Buffered() != 0 {
		t.Error("Abort() should release the buffer")
	}

	if again := s.Abort(domain.ErrIOFailure); again.Err != nil {
		t.Error("Abort() on a terminal session must not report again")
	}
}

func TestAbortAfterDelivery(t *testing.T) {
	s := New(testSnapshot(t), testChallenge)
	s.Greeting()
	s.Feed(v2Frame(t, steve, "s3cret"))

	if step := s.EndOfInput(); step.Err != nil {
		t.Errorf("EndOfInput() after delivery = %+v", step)
	}
	if s.State() != StateDelivered {
		t.Errorf("state = %v, want delivered", s.State())
	}
}

func TestFeedBeforeGreeting(t *testing.T) {
	s := New(testSnapshot(t), testChallenge)
	if step := s.Feed([]byte{0x73}); step.Done {
		t.Errorf("Feed() = %+v", step)
	}
	if s.State() != StateDifferentiating {
		t.Errorf("state = %v", s.State())
	}
}
