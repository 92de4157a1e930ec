package oauth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndLoadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "yandex.json")

	state := State{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		Scope:        "iot:view",
	}
	if err := WriteState(path, state); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat state: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.SchemaVersion != SchemaVersion {
		t.Fatalf("expected schema version %d, got %d", SchemaVersion, loaded.SchemaVersion)
	}
	if loaded.RefreshToken != "refresh-token" || loaded.Scope != "iot:view" {
		t.Fatalf("unexpected state: %+v", loaded)
	}
}

func TestLoadStateMissing(t *testing.T) {
	_, err := LoadState(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestDecodeStateRejectsIncomplete(t *testing.T) {
	cases := map[string]string{
		"bad schema":    `{"schema_version":9,"client_id":"a","refresh_token":"b"}`,
		"missing id":    `{"schema_version":1,"refresh_token":"b"}`,
		"missing token": `{"schema_version":1,"client_id":"a"}`,
	}
	for name, payload := range cases {
		if _, err := DecodeState([]byte(payload)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNormalizeRawToken(t *testing.T) {
	cases := map[string]string{
		"  token-value  ":     "token-value",
		"Bearer token-value":  "token-value",
		"bearer  token-value": "token-value",
		"":                    "",
	}
	for input, want := range cases {
		if got := NormalizeRawToken(input); got != want {
			t.Errorf("NormalizeRawToken(%q) = %q, want %q", input, got, want)
		}
	}
}
