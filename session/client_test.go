package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cjh980402/kakao-link/session"
)

func TestNew_RejectsBadAppKey(t *testing.T) {
	for _, n := range []int{0, 31, 33} {
		_, err := session.New(strings.Repeat("a", n), testOrigin)
		if !errors.Is(err, session.ErrInvalidArgument) {
			t.Errorf("key length %d: got %v, want ErrInvalidArgument", n, err)
		}
	}
}

func TestNew_RejectsBadOrigin(t *testing.T) {
	for _, origin := range []string{"", "app.example", "ftp://app.example", "https://", "//app.example"} {
		_, err := session.New(testAppKey, origin)
		if !errors.Is(err, session.ErrInvalidArgument) {
			t.Errorf("origin %q: got %v, want ErrInvalidArgument", origin, err)
		}
	}
}

func TestNew_OriginTag(t *testing.T) {
	cases := map[string]string{
		"https://app.example":        "https%3A%2F%2Fapp.example",
		"http://localhost:3000/a b":  "http%3A%2F%2Flocalhost%3A3000%2Fa%20b",
		"https://x.example/(1)!*'~?": "https%3A%2F%2Fx.example%2F(1)!*'~%3F",
	}
	for origin, encoded := range cases {
		c, err := session.New(testAppKey, origin)
		if err != nil {
			t.Fatalf("New(%q): %v", origin, err)
		}
		want := "sdk/1.36.6 os/javascript lang/en-US device/Win32 origin/" + encoded
		if got := c.OriginTag(); got != want {
			t.Errorf("OriginTag(%q): got %q, want %q", origin, got, want)
		}
	}
}

func TestNew_StartsEmpty(t *testing.T) {
	c, err := session.New(testAppKey, testOrigin)
	if err != nil {
		t.Fatal(err)
	}
	if c.Referer() != "" {
		t.Errorf("Referer: got %q, want empty", c.Referer())
	}
	if len(c.Cookies()) != 0 || c.HasAuthCookies() {
		t.Error("a new client must hold no cookies")
	}
}

func TestZeroValueClient_IsIllegalState(t *testing.T) {
	var c session.Client
	if err := c.Login(context.Background(), "u@e.com", "pw"); !errors.Is(err, session.ErrIllegalState) {
		t.Errorf("Login: got %v, want ErrIllegalState", err)
	}
	if err := c.Send(context.Background(), "A", map[string]string{}, ""); !errors.Is(err, session.ErrIllegalState) {
		t.Errorf("Send: got %v, want ErrIllegalState", err)
	}
	if c.Referer() != "" || len(c.Cookies()) != 0 {
		t.Error("zero client should report empty state")
	}
}

func TestCookiesReturnsCopy(t *testing.T) {
	f := newFakeService(t)
	c := f.newClient()
	if err := c.Login(context.Background(), "u@e.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	got := c.Cookies()
	got["_kawlt"] = "tampered"
	if c.Cookies()["_kawlt"] == "tampered" {
		t.Error("Cookies must return a copy")
	}
}
