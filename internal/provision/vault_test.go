package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/schooltests/internal/db/dbtest"
)

func TestVaultSealRevealPurge(t *testing.T) {
	ctx := context.Background()
	h := dbtest.Open(t)
	v := NewVault(h, "k1", time.Hour)
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }

	tok, err := v.Seal(ctx, "u1", "a@example.com", "s1", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	var stored string
	if err := h.QueryRow(`SELECT sealed FROM credential_reveals`).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored == "hunter22" {
		t.Fatal("password stored in clear")
	}

	other := NewVault(h, "k2", time.Hour)
	other.now = v.now
	if _, err := other.Reveal(ctx, tok); !errors.Is(err, ErrRevealNotFound) {
		t.Fatalf("wrong key reveal err = %v", err)
	}

	tok, _ = v.Seal(ctx, "u1", "a@example.com", "s1", "hunter22")
	c, err := v.Reveal(ctx, tok)
	if err != nil || c.Password != "hunter22" || c.UserID != "u1" {
		t.Fatalf("reveal = %+v, %v", c, err)
	}

	expired, _ := v.Seal(ctx, "u2", "b@example.com", "s1", "pw123456")
	now = now.Add(2 * time.Hour)
	if _, err := v.Reveal(ctx, expired); !errors.Is(err, ErrRevealNotFound) {
		t.Fatalf("expired reveal err = %v", err)
	}
	if n, err := v.Purge(ctx); err != nil || n != 1 {
		t.Fatalf("purge = %d, %v", n, err)
	}
}

func TestVaultDeleteForUser(t *testing.T) {
	ctx := context.Background()
	v := NewVault(dbtest.Open(t), "k", time.Hour)
	tok, _ := v.Seal(ctx, "u1", "a@example.com", "s1", "pw123456")
	if err := v.DeleteForUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Reveal(ctx, tok); !errors.Is(err, ErrRevealNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestGeneratePassword(t *testing.T) {
	a, _ := GeneratePassword(20)
	b, _ := GeneratePassword(20)
	if len(a) != 20 || a == b {
		t.Fatalf("passwords %q %q", a, b)
	}
}
