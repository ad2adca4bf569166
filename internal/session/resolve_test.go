package session

import (
	"os"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Setenv("TGCHATS_HOME", t.TempDir())

	if got := Resolve("work"); got != "work" {
		t.Errorf("Resolve(work) = %q, want flag value", got)
	}
	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultSessionName)
	}

	if err := os.WriteFile(ConfigPath(), []byte(`default_session = "phone"`+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "phone" {
		t.Errorf("Resolve() = %q, want config default %q", got, "phone")
	}
}
