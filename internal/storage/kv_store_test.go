// ABOUTME: Tests for the file and memory key-value stores.
// ABOUTME: Both implementations run through the same contract checks.
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func storeImpls(t *testing.T) map[string]KVStore {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.toml"))
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return map[string]KVStore{
		"file":   fs,
		"memory": NewMemoryStore(),
	}
}

func TestKVStoreContract(t *testing.T) {
	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			if v, err := store.Get(KeyServer); err != nil || v != "" {
				t.Fatalf("expected empty value for missing key, got %q, %v", v, err)
			}

			if err := store.Set(KeyServer, "example.social"); err != nil {
				t.Fatalf("Set error: %v", err)
			}
			if err := store.SetMany(map[string]string{
				KeyAccessToken: "tok",
				KeyUserID:      "42",
			}); err != nil {
				t.Fatalf("SetMany error: %v", err)
			}

			for key, want := range map[string]string{KeyServer: "example.social", KeyAccessToken: "tok", KeyUserID: "42"} {
				got, err := store.Get(key)
				if err != nil {
					t.Fatalf("Get(%q) error: %v", key, err)
				}
				if got != want {
					t.Errorf("Get(%q) = %q, want %q", key, got, want)
				}
			}

			if err := store.Remove(KeyUserID); err != nil {
				t.Fatalf("Remove error: %v", err)
			}
			if v, _ := store.Get(KeyUserID); v != "" {
				t.Errorf("expected userID removed, got %q", v)
			}
			if err := store.Remove("never-set"); err != nil {
				t.Errorf("expected removing a missing key to succeed, got %v", err)
			}

			if err := store.SetMany(map[string]string{KeyAccessToken: ""}); err != nil {
				t.Fatalf("SetMany error: %v", err)
			}
			if v, _ := store.Get(KeyAccessToken); v != "" {
				t.Errorf("expected empty SetMany value to remove key, got %q", v)
			}

			if err := store.Clear(); err != nil {
				t.Fatalf("Clear error: %v", err)
			}
			for _, key := range SessionKeys {
				if v, _ := store.Get(key); v != "" {
					t.Errorf("expected %q cleared, got %q", key, v)
				}
			}
			if err := store.Clear(); err != nil {
				t.Errorf("expected second Clear to succeed, got %v", err)
			}
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	first, _ := NewFileStore(path)
	if err := first.SetMany(map[string]string{KeyServer: "example.social", KeyAccessToken: "secret"}); err != nil {
		t.Fatalf("SetMany error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected session file to exist: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "accessToken") {
		t.Errorf("expected TOML to contain accessToken key, got %s", data)
	}

	second, _ := NewFileStore(path)
	if v, _ := second.Get(KeyAccessToken); v != "secret" {
		t.Errorf("expected token to survive reopen, got %q", v)
	}

	if err := second.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected session file removed after Clear, got %v", err)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte("this is = = not toml"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	store, _ := NewFileStore(path)
	if _, err := store.Get(KeyServer); err == nil {
		t.Error("expected parse error for corrupt session file")
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}
