package credential

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "Str0ng!Passw0rd"

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	t.Run("round_trip", func(t *testing.T) {
		hash, err := h.Hash(strongPassword)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !h.Verify(strongPassword, hash) {
			t.Error("expected password to verify")
		}
		if h.Verify("Wr0ng!Passw0rd", hash) {
			t.Error("expected wrong password to fail")
		}
	})

	t.Run("bytes_after_72_ignored", func(t *testing.T) {
		base := "Aa1!" + strings.Repeat("x", 68)
		if len(base) != 72 {
			t.Fatalf("fixture should be 72 bytes, got %d", len(base))
		}
		hash, err := h.Hash(base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !h.Verify(base+"anything-else", hash) {
			t.Error("expected suffix beyond 72 bytes to be ignored")
		}
	})

	t.Run("malformed_hash_is_false", func(t *testing.T) {
		for _, hash := range []string{"", "not-a-hash", "$2a$10$short"} {
			if h.Verify(strongPassword, hash) {
				t.Errorf("expected false for hash %q", hash)
			}
		}
	})

	t.Run("policy_enforced", func(t *testing.T) {
		_, err := h.Hash("weak")
		var perr *PolicyError
		if !errors.As(err, &perr) {
			t.Fatalf("expected *PolicyError, got %v", err)
		}
	})

	t.Run("dummy_verify_does_not_panic", func(t *testing.T) {
		h.DummyVerify(strongPassword)
		h.DummyVerify("")
	})
}

func TestTruncate72(t *testing.T) {
	t.Run("short_unchanged", func(t *testing.T) {
		if got := Truncate72("hello"); got != "hello" {
			t.Errorf("expected hello, got %q", got)
		}
	})

	t.Run("multibyte_boundary", func(t *testing.T) {
		// 71 ASCII bytes followed by a 2-byte rune straddles the limit.
		s := strings.Repeat("a", 71) + "é" + "tail"
		got := Truncate72(s)
		if len(got) != 71 {
			t.Errorf("expected 71 bytes, got %d", len(got))
		}
		if !utf8.ValidString(got) {
			t.Error("expected valid UTF-8")
		}
	})

	t.Run("all_multibyte", func(t *testing.T) {
		s := strings.Repeat("ж", 50) // 100 bytes
		got := Truncate72(s)
		if len(got) != 72 || !utf8.ValidString(got) {
			t.Errorf("expected 72 valid bytes, got %d", len(got))
		}
	})
}

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantRule string
	}{
		{name: "valid", password: strongPassword},
		{name: "too_short", password: "Aa1!", wantRule: "at least 8"},
		{name: "too_long", password: "Aa1!" + strings.Repeat("x", 69), wantRule: "72 bytes"},
		{name: "no_upper", password: "str0ng!passw0rd", wantRule: "uppercase"},
		{name: "no_lower", password: "STR0NG!PASSW0RD", wantRule: "lowercase"},
		{name: "no_digit", password: "Strong!Password", wantRule: "digit"},
		{name: "no_special", password: "Str0ngPassw0rd", wantRule: "special"},
		{name: "common", password: "PASSWORD", wantRule: "too common"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePolicy(tt.password)
			if tt.wantRule == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantRule) {
				t.Errorf("expected violation %q, got %v", tt.wantRule, err)
			}
		})
	}
}

func TestStrengthScore(t *testing.T) {
	if got := StrengthScore(""); got != 20 {
		t.Errorf("expected empty password to score 20, got %d", got)
	}
	weak := StrengthScore("aaa123")
	strong := StrengthScore("Xk9!vQ#mT2$wLp7")
	if weak >= strong {
		t.Errorf("expected weak (%d) < strong (%d)", weak, strong)
	}
	if strong != 100 {
		t.Errorf("expected 100 for strong password, got %d", strong)
	}
}
