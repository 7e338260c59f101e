package credential

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestStore_RoundTrip(t *testing.T) {
	keyring.MockInit()
	s := NewStore()

	if _, err := s.Get("u@e.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Set: got %v, want ErrNotFound", err)
	}
	if err := s.Set("u@e.com", "pw"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get("u@e.com")
	if err != nil || got != "pw" {
		t.Errorf("Get: got %q, %v; want pw", got, err)
	}
	if err := s.Delete("u@e.com"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := s.Delete("u@e.com"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if _, err := s.Get("u@e.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got %v", err)
	}
}

func TestStore_ServicesAreSeparate(t *testing.T) {
	keyring.MockInit()
	a := &Store{Service: "a"}
	b := &Store{Service: "b"}
	_ = a.Set("u@e.com", "one")
	if _, err := b.Get("u@e.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("service b sees service a's entry: %v", err)
	}
}

func TestStore_RequiresEmail(t *testing.T) {
	keyring.MockInit()
	s := NewStore()
	if err := s.Set("", "pw"); err == nil {
		t.Error("Set with empty email should fail")
	}
	if _, err := s.Get(""); err == nil {
		t.Error("Get with empty email should fail")
	}
}

func TestStore_BackendError(t *testing.T) {
	orig := keyringGet
	defer func() { keyringGet = orig }()
	boom := errors.New("dbus unavailable")
	keyringGet = func(string, string) (string, error) { return "", boom }

	_, err := NewStore().Get("u@e.com")
	if !errors.Is(err, boom) || errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want wrapped backend error", err)
	}
}
