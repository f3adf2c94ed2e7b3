package client

import (
	"os"
	"testing"
)

func TestRootRegistersCommandGroups(t *testing.T) {
	root := NewRoot(func() string { return "http://127.0.0.1:8080" })
	want := map[string]bool{"issue": false, "subscriber": false, "task": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing command group %q", name)
		}
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	_ = os.Setenv("MAILROOM_PUBLISHER_USERNAME", "env-user")
	_ = os.Setenv("MAILROOM_PUBLISHER_PASSWORD", "env-pass")
	t.Cleanup(func() {
		_ = os.Unsetenv("MAILROOM_PUBLISHER_USERNAME")
		_ = os.Unsetenv("MAILROOM_PUBLISHER_PASSWORD")
	})

	u, p := credentialsFromEnv("", "")
	if u != "env-user" || p != "env-pass" {
		t.Fatalf("got %q %q", u, p)
	}
	// flags win over env
	u, p = credentialsFromEnv("flag-user", "flag-pass")
	if u != "flag-user" || p != "flag-pass" {
		t.Fatalf("got %q %q", u, p)
	}
}
