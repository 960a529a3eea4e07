package xcrypto

import (
	"errors"
	"testing"

	"xdp-service/internal/domain"
)

func TestNewHmacSigner_KeySizes(t *testing.T) {
	tests := map[string]int{
		"HMACSHA1":   20,
		"HMACSHA256": 32,
		"HMACSHA384": 48,
		"hmacsha512": 64,
	}
	for alg, want := range tests {
		s, err := NewHmacSigner(alg)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", alg, err)
		}
		key, err := s.GenerateKey()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(key) != want {
			t.Errorf("%s: want key size %d, got %d", alg, want, len(key))
		}
	}
}

func TestNewHmacSigner_Unknown(t *testing.T) {
	_, err := NewHmacSigner("HMACRIPEMD")
	if !errors.Is(err, domain.ErrBadSignatureAlgorithm) {
		t.Errorf("want ErrBadSignatureAlgorithm, got %v", err)
	}
}

func TestHmacSigner_SignVerify(t *testing.T) {
	s, _ := NewHmacSigner("HMACSHA256")
	key, _ := s.GenerateKey()
	data := []byte("the quick brown fox")

	tag, err := s.Sign(data, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := s.Verify(data, tag, key)
	if err != nil || !ok {
		t.Fatalf("want verify true, got %v (%v)", ok, err)
	}

	// 1ビット反転で検証に失敗する
	for i := 0; i < len(data)*8; i += 7 {
		flipped := append([]byte(nil), data...)
		flipped[i/8] ^= 1 << (i % 8)
		if ok, _ := s.Verify(flipped, tag, key); ok {
			t.Errorf("verify succeeded with data bit %d flipped", i)
		}
	}
	for i := 0; i < len(tag)*8; i += 5 {
		flipped := append([]byte(nil), tag...)
		flipped[i/8] ^= 1 << (i % 8)
		if ok, _ := s.Verify(data, flipped, key); ok {
			t.Errorf("verify succeeded with tag bit %d flipped", i)
		}
	}
}

func TestHmacSigner_Verify_LengthMismatch(t *testing.T) {
	s, _ := NewHmacSigner("HMACSHA256")
	key, _ := s.GenerateKey()
	tag, _ := s.Sign([]byte("data"), key)

	ok, err := s.Verify([]byte("data"), tag[:len(tag)-1], key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("want false for truncated tag")
	}
}

func TestHmacSigner_Sign_Errors(t *testing.T) {
	s, _ := NewHmacSigner("HMACSHA256")
	key, _ := s.GenerateKey()

	if _, err := s.Sign(nil, key); !errors.Is(err, domain.ErrNullArgument) {
		t.Errorf("want ErrNullArgument, got %v", err)
	}
	if _, err := s.Sign([]byte{}, key); !errors.Is(err, domain.ErrEmptyArgument) {
		t.Errorf("want ErrEmptyArgument, got %v", err)
	}
	if _, err := s.Sign([]byte("x"), key[:4]); !errors.Is(err, domain.ErrBadSignatureKeyLength) {
		t.Errorf("want ErrBadSignatureKeyLength, got %v", err)
	}
}
