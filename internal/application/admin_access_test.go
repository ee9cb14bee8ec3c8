package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var fastArgon2idParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestPasskeyHashRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := CreatePasskeyHash("s3cret", fastArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasskeyHash returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected hash encoding %q", hash)
	}
	if err := VerifyPasskey(hash, "s3cret"); err != nil {
		t.Fatalf("expected passkey to verify, got %v", err)
	}
	if err := VerifyPasskey(hash, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyPasskeyRejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"plain":                            ErrInvalidPasskeyHash,
		"$bcrypt$v=19$m=1,t=1,p=1$a$b":     ErrInvalidPasskeyHash,
		"$argon2id$v=18$m=1,t=1,p=1$YQ$Yg": ErrIncompatiblePasskeyVersion,
		"$argon2id$v=19$m=x$YQ$Yg":         ErrInvalidPasskeyHash,
	}
	for hash, want := range cases {
		if err := VerifyPasskey(hash, "anything"); !errors.Is(err, want) {
			t.Fatalf("VerifyPasskey(%q) = %v, want %v", hash, err, want)
		}
	}
}

func TestAdminGate(t *testing.T) {
	t.Parallel()

	hash, err := CreatePasskeyHash("open-sesame", fastArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasskeyHash returned error: %v", err)
	}

	gate, err := NewAdminGate(hash, "", nil)
	if err != nil {
		t.Fatalf("NewAdminGate returned error: %v", err)
	}
	if err := gate.Authorize(context.Background(), "open-sesame"); err != nil {
		t.Fatalf("expected passkey to be accepted, got %v", err)
	}
	for _, candidate := range []string{"", "open", "open-sesame "} {
		if err := gate.Authorize(context.Background(), candidate); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Authorize(%q) = %v, want ErrUnauthorized", candidate, err)
		}
	}

	if _, err := NewAdminGate("", "", nil); err == nil {
		t.Fatalf("expected error when no passkey is configured")
	}
	if _, err := NewAdminGate("garbage", "", nil); !errors.Is(err, ErrInvalidPasskeyHash) {
		t.Fatalf("expected ErrInvalidPasskeyHash, got %v", err)
	}

	var nilGate *AdminGate
	if err := nilGate.Authorize(context.Background(), "open-sesame"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected nil gate to deny access")
	}
}

// countingDerive wraps the argon2id derivation and records how many run at once.
type countingDerive struct {
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
}

func (c *countingDerive) derive(passkey string, d decodedHash) []byte {
	c.calls.Add(1)
	now := c.running.Add(1)
	defer c.running.Add(-1)
	for {
		peak := c.peak.Load()
		if now <= peak || c.peak.CompareAndSwap(peak, now) {
			break
		}
	}
	time.Sleep(c.delay)
	return deriveArgon2id(passkey, d)
}

func TestAdminGateRejectionCost(t *testing.T) {
	t.Parallel()

	t.Run("plain passkey never derives argon2id", func(t *testing.T) {
		t.Parallel()

		gate, err := NewAdminGate("", "open-sesame", nil)
		if err != nil {
			t.Fatalf("NewAdminGate returned error: %v", err)
		}
		counter := &countingDerive{}
		gate.derive = counter.derive

		for _, candidate := range []string{"wrong", "open-sesame", "open-sesame!"} {
			_ = gate.Authorize(context.Background(), candidate)
		}
		if err := gate.Authorize(context.Background(), "open-sesame"); err != nil {
			t.Fatalf("expected passkey to be accepted, got %v", err)
		}
		if got := counter.calls.Load(); got != 0 {
			t.Fatalf("expected no argon2id derivations, got %d", got)
		}
	})

	t.Run("hash-only gate stops deriving once the passkey is verified", func(t *testing.T) {
		t.Parallel()

		hash, err := CreatePasskeyHash("open-sesame", fastArgon2idParams)
		if err != nil {
			t.Fatalf("CreatePasskeyHash returned error: %v", err)
		}
		gate, err := NewAdminGate(hash, "", nil)
		if err != nil {
			t.Fatalf("NewAdminGate returned error: %v", err)
		}
		counter := &countingDerive{}
		gate.derive = counter.derive

		if err := gate.Authorize(context.Background(), "open-sesame"); err != nil {
			t.Fatalf("expected passkey to be accepted, got %v", err)
		}
		for i := 0; i < 10; i++ {
			if err := gate.Authorize(context.Background(), "guess"); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		}
		if err := gate.Authorize(context.Background(), "open-sesame"); err != nil {
			t.Fatalf("expected passkey to still be accepted, got %v", err)
		}
		if got := counter.calls.Load(); got != 1 {
			t.Fatalf("expected a single derivation, got %d", got)
		}
	})

	t.Run("concurrent guesses derive one at a time", func(t *testing.T) {
		t.Parallel()

		hash, err := CreatePasskeyHash("open-sesame", fastArgon2idParams)
		if err != nil {
			t.Fatalf("CreatePasskeyHash returned error: %v", err)
		}
		gate, err := NewAdminGate(hash, "", nil)
		if err != nil {
			t.Fatalf("NewAdminGate returned error: %v", err)
		}
		counter := &countingDerive{delay: 5 * time.Millisecond}
		gate.derive = counter.derive

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = gate.Authorize(context.Background(), "guess")
			}()
		}
		wg.Wait()

		if got := counter.peak.Load(); got != 1 {
			t.Fatalf("expected at most one derivation in flight, saw %d", got)
		}
		if got := counter.calls.Load(); got != 8 {
			t.Fatalf("expected every guess to be checked, got %d", got)
		}
	})

	t.Run("waiting caller gives up with its context", func(t *testing.T) {
		t.Parallel()

		hash, err := CreatePasskeyHash("open-sesame", fastArgon2idParams)
		if err != nil {
			t.Fatalf("CreatePasskeyHash returned error: %v", err)
		}
		gate, err := NewAdminGate(hash, "", nil)
		if err != nil {
			t.Fatalf("NewAdminGate returned error: %v", err)
		}
		if err := gate.verifying.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		defer gate.verifying.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := gate.Authorize(ctx, "open-sesame"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized while verification is saturated, got %v", err)
		}
	})
}
