package storage

import "testing"

func TestSessionFileKey(t *testing.T) {
	key, err := SessionFileKey("3f2a9c1e-0b7d-4c55-9e61-7d2b1f0a8c44", "DM visits (v2).csv")
	if err != nil {
		t.Fatalf("SessionFileKey() error = %v", err)
	}
	want := "sessions/3f2a9c1e-0b7d-4c55-9e61-7d2b1f0a8c44/DM visits (v2).csv"
	if key != want {
		t.Fatalf("SessionFileKey() = %q, want %q", key, want)
	}
}

func TestSessionFileKeyRejectsInvalidComponents(t *testing.T) {
	if _, err := SessionFileKey("../oops", "dm.csv"); err == nil {
		t.Fatal("expected invalid session id error")
	}
	if _, err := SessionFileKey("session-1", "../dm.csv"); err == nil {
		t.Fatal("expected invalid filename error")
	}
	if _, err := SessionFileKey("session-1", "a/b.csv"); err == nil {
		t.Fatal("expected invalid filename error for nested path")
	}
}

func TestSessionPrefix(t *testing.T) {
	prefix, err := SessionPrefix("session-1")
	if err != nil {
		t.Fatalf("SessionPrefix() error = %v", err)
	}
	if prefix != "sessions/session-1/" {
		t.Fatalf("SessionPrefix() = %q, want %q", prefix, "sessions/session-1/")
	}
	if _, err := SessionPrefix("../x"); err == nil {
		t.Fatal("expected invalid session id error")
	}
}
