package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), ".spacetime_mmorpg"))

	token, err := s.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "" {
		t.Errorf("LoadToken() = %q, want empty", token)
	}
}

func TestStore_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".spacetime_mmorpg")
	s := NewStore(path)

	if err := s.SaveToken("tok-1"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	if err := s.SaveToken("tok-2"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	token, err := s.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "tok-2" {
		t.Errorf("LoadToken() = %q, want %q", token, "tok-2")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file perm = %o, want 600", perm)
	}
}

func TestStore_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  abc\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}

	token, err := NewStore(path).LoadToken()
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "abc" {
		t.Errorf("LoadToken() = %q, want %q", token, "abc")
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "token"))

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on missing file failed: %v", err)
	}
	if err := s.SaveToken("x"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if token, _ := s.LoadToken(); token != "" {
		t.Errorf("LoadToken() after Clear = %q, want empty", token)
	}
}

func TestStore_NotInitialized(t *testing.T) {
	s := &Store{}

	if _, err := s.LoadToken(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("LoadToken err = %v, want ErrNotInitialized", err)
	}
	if err := s.SaveToken("x"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SaveToken err = %v, want ErrNotInitialized", err)
	}

	s.Init(filepath.Join(t.TempDir(), "token"))
	if _, err := s.LoadToken(); err != nil {
		t.Errorf("LoadToken after Init failed: %v", err)
	}
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(-time.Hour).Truncate(time.Second)
	claims := jwt.MapClaims{
		"sub":          "client-1",
		"iss":          "localhost",
		"hex_identity": "c200aa",
		"iat":          exp.Add(-time.Hour).Unix(),
		"exp":          exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	got, err := Inspect(token)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if got.Subject != "client-1" || got.Issuer != "localhost" {
		t.Errorf("Inspect() subject/issuer = %q/%q", got.Subject, got.Issuer)
	}
	if got.HexIdentity != "c200aa" {
		t.Errorf("HexIdentity = %q, want %q", got.HexIdentity, "c200aa")
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, exp)
	}
	if !got.Expired(time.Now()) {
		t.Error("Expired() = false, want true")
	}
}

func TestInspect_Garbage(t *testing.T) {
	if _, err := Inspect("not-a-jwt"); err == nil {
		t.Error("Inspect(garbage) returned nil error")
	}
}
