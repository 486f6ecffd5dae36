package vault

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := randomKey(t)
	pt := []byte(`{"id":1,"site":"example.com"}`)

	env, err := Seal(key, 1, pt)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if env.FormatVersion != CurrentFormat {
		t.Fatalf("format version = %d, want %d", env.FormatVersion, CurrentFormat)
	}

	out, err := Open(key, env)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(pt, out) {
		t.Fatal("plaintext mismatch")
	}
}

func TestOpenWrongKey(t *testing.T) {
	env, err := Seal(randomKey(t), 1, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(randomKey(t), env); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("got %v, want ErrIntegrity", err)
	}
}

func TestOpenBitFlips(t *testing.T) {
	key := randomKey(t)
	env, err := Seal(key, 7, []byte("attack at dawn"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	// Flip every bit of the nonce and ciphertext (which carries the tag) in
	// turn; each mutation must be rejected, never decrypted to altered
	// plaintext.
	for _, field := range []struct {
		name string
		buf  []byte
	}{
		{"nonce", env.Nonce},
		{"ciphertext", env.Ciphertext},
	} {
		for i := range field.buf {
			for bit := 0; bit < 8; bit++ {
				mut := env
				mut.Nonce = append([]byte(nil), env.Nonce...)
				mut.Ciphertext = append([]byte(nil), env.Ciphertext...)
				switch field.name {
				case "nonce":
					mut.Nonce[i] ^= 1 << bit
				case "ciphertext":
					mut.Ciphertext[i] ^= 1 << bit
				}
				if _, err := Open(key, mut); !errors.Is(err, ErrIntegrity) {
					t.Fatalf("%s bit flip at byte %d bit %d: got %v, want ErrIntegrity", field.name, i, bit, err)
				}
			}
		}
	}
}

func TestOpenEnvelopeSwappedBetweenIDs(t *testing.T) {
	key := randomKey(t)
	env, err := Seal(key, 1, []byte("secret for record 1"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	// Reassigning the envelope to another record slot must break the AAD
	// binding.
	env.ID = 2
	if _, err := Open(key, env); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("got %v, want ErrIntegrity", err)
	}
}

func TestOpenUnrecognizedFormatVersion(t *testing.T) {
	key := randomKey(t)
	env, err := Seal(key, 1, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	env.FormatVersion = 99
	if _, err := Open(key, env); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("got %v, want ErrIntegrity", err)
	}
}

func TestOpenTruncatedCiphertext(t *testing.T) {
	key := randomKey(t)
	env, err := Seal(key, 1, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	env.Ciphertext = env.Ciphertext[:len(env.Ciphertext)-1]
	if _, err := Open(key, env); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("got %v, want ErrIntegrity", err)
	}
}

func TestSealNonceFreshness(t *testing.T) {
	key := randomKey(t)
	pt := []byte("identical plaintext")

	nonces := make(map[string]bool)
	ciphertexts := make(map[string]bool)
	for i := 0; i < 64; i++ {
		env, err := Seal(key, 1, pt)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		if nonces[string(env.Nonce)] {
			t.Fatal("nonce repeated across seals")
		}
		nonces[string(env.Nonce)] = true
		if ciphertexts[string(env.Ciphertext)] {
			t.Fatal("ciphertext repeated across seals")
		}
		ciphertexts[string(env.Ciphertext)] = true
	}
}

func TestOpenLegacyFormat(t *testing.T) {
	key := randomKey(t)
	pt := []byte("written by the original format")

	env, err := SealV1(key, 3, pt)
	if err != nil {
		t.Fatalf("seal v1: %v", err)
	}
	if env.FormatVersion != FormatAESGCM {
		t.Fatalf("format version = %d, want %d", env.FormatVersion, FormatAESGCM)
	}

	out, err := Open(key, env)
	if err != nil {
		t.Fatalf("open v1 envelope: %v", err)
	}
	if !bytes.Equal(pt, out) {
		t.Fatal("legacy plaintext mismatch")
	}
}
