package protocol

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"
)

var tlsHello = []byte{0x16, 0x03, 0x01, 0x02, 0x00, 0x01, 0x00, 0x01, 0xFC, 0x03, 0x03}

func TestDifferentiate(t *testing.T) {
	tests := []struct {
		name   string
		prefix []byte
		want   Classification
	}{
		{"empty", nil, NeedMore},
		{"one byte", []byte{0x73}, NeedMore},
		{"v2 magic", []byte{0x73, 0x3A}, V2},
		{"v2 magic with body", []byte{0x73, 0x3A, 0x00, 0x10, '{'}, V2},
		{"binary", []byte{0x42, 0x99, 0x01}, V1},
		{"v2 magic reversed", []byte{0x3A, 0x73}, V1},
		{"tls client hello", tlsHello, Unrecognized},
		{"tls header incomplete", tlsHello[:5], NeedMore},
		{"tls bytes then ciphertext", []byte{0x16, 0x03, 0x44, 0xC7, 0x10}, V1},
		{"tls header wrong handshake type", []byte{0x16, 0x03, 0x01, 0x02, 0x00, 0x02, 0x00, 0x01, 0xFC}, V1},
		{"tls header inconsistent length", []byte{0x16, 0x03, 0x01, 0x02, 0x00, 0x01, 0x00, 0x07, 0x11}, V1},
		{"http get", []byte("GET / HTTP/1.1\r\n"), Unrecognized},
		{"http post", []byte("POST /vote HTTP/1.0\r\n"), Unrecognized},
		{"http2 preface", []byte("PRI * HTTP/2.0\r\n"), Unrecognized},
		{"ssh banner", []byte("SSH-2.0-OpenSSH"), Unrecognized},
		{"partial http", []byte("GE"), NeedMore},
		{"partial http three", []byte("GET"), NeedMore},
		{"http target pending", []byte("GET /index"), NeedMore},
		{"diverges from http", []byte("GEX"), V1},
		{"partial put vs post", []byte("PO"), NeedMore},
		{"method then binary", []byte{'G', 'E', 'T', ' ', '/', 0x00, 0x9F}, V1},
		{"method without version", []byte("GET / FOO/1.1"), V1},
		{"ssh without version", []byte("SSH-9"), V1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Differentiate(tt.prefix); got != tt.want {
				t.Errorf("Differentiate(%q) = %v, want %v", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestDifferentiate_TLSRecordBytesAloneAreV1(t *testing.T) {
	// Ciphertext starting 16 03 with any continuation that is not a
	// complete ClientHello header stays v1.
	for b2 := 0; b2 < 256; b2++ {
		p := []byte{0x16, 0x03, byte(b2), 0x00, 0x80, 0x7F, 0x21, 0x33, 0x90, 0x01}
		if got := Differentiate(p); got != V1 {
			t.Errorf("Differentiate(%x) = %v, want v1", p, got)
		}
	}
}

func TestDifferentiate_Idempotent(t *testing.T) {
	prefixes := [][]byte{
		{0x73, 0x3A, 0x01},
		{0x01, 0x02, 0x03, 0x04},
		[]byte("HEAD"),
		{0x16},
	}

	for _, p := range prefixes {
		orig := bytes.Clone(p)
		first := Differentiate(p)
		second := Differentiate(p)
		if first != second {
			t.Errorf("Differentiate(%x) not idempotent: %v then %v", p, first, second)
		}
		if !bytes.Equal(orig, p) {
			t.Errorf("Differentiate(%x) modified its input", orig)
		}
	}
}

func TestDifferentiate_NeverNeedsMoreThanMaxPrefix(t *testing.T) {
	pad := func(head string) []byte {
		return []byte(head + strings.Repeat("a", MaxPrefixLen-len(head)))
	}
	prefixes := [][]byte{
		pad("GET /"),
		pad("OPTIONS "),
		pad("GET "),
		pad("SSH-2"),
		append(bytes.Clone(tlsHello[:9]), make([]byte, MaxPrefixLen-9)...),
		make([]byte, MaxPrefixLen),
	}

	for _, p := range prefixes {
		if len(p) != MaxPrefixLen {
			t.Fatalf("bad fixture length %d", len(p))
		}
		if got := Differentiate(p); got == NeedMore {
			t.Errorf("Differentiate(%q) = NeedMore with %d bytes", p, MaxPrefixLen)
		}
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		p := make([]byte, MaxPrefixLen)
		for j := range p {
			p[j] = byte(rng.IntN(256))
		}
		if got := Differentiate(p); got == NeedMore || got == Unrecognized {
			t.Fatalf("Differentiate(%x) = %v for random bytes", p, got)
		}
	}
}

func TestClassification_String(t *testing.T) {
	if V2.String() != "v2" || Unrecognized.String() != "unrecognized" || NeedMore.String() != "need_more" {
		t.Error("unexpected Classification strings")
	}
}
