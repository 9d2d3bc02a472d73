package main

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/session-login/internal/password"
)

func stubTerminal(t *testing.T, terminal bool, secret string) {
	t.Helper()
	origRead, origIs := readPassword, isTerminal
	t.Cleanup(func() {
		readPassword, isTerminal = origRead, origIs
	})
	isTerminal = func(int) bool { return terminal }
	readPassword = func(int) ([]byte, error) { return []byte(secret), nil }
}

func TestRunFromPipe(t *testing.T) {
	stubTerminal(t, false, "")
	var out, prompt bytes.Buffer

	if err := run(strings.NewReader("2301769\n"), 0, &out, &prompt, bcrypt.MinCost); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	digest := strings.TrimSpace(out.String())
	if !password.NewHasher(bcrypt.MinCost).Verify("2301769", digest) {
		t.Fatalf("digest does not verify: %q", digest)
	}
	if prompt.Len() != 0 {
		t.Fatalf("unexpected prompt for piped input: %q", prompt.String())
	}
}

func TestRunFromTerminal(t *testing.T) {
	stubTerminal(t, true, "2301769")
	var out, prompt bytes.Buffer

	if err := run(strings.NewReader(""), 0, &out, &prompt, bcrypt.MinCost); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.HasPrefix(prompt.String(), "Password: ") {
		t.Fatalf("expected prompt, got %q", prompt.String())
	}
	if !password.NewHasher(bcrypt.MinCost).Verify("2301769", strings.TrimSpace(out.String())) {
		t.Fatal("digest does not verify")
	}
}

func TestRunRejectsEmpty(t *testing.T) {
	stubTerminal(t, false, "")
	var out bytes.Buffer

	if err := run(strings.NewReader("\n"), 0, &out, &out, bcrypt.MinCost); err == nil {
		t.Fatal("expected error for empty password")
	}
}
