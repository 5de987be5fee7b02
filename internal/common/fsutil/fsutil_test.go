package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	// Set a deterministic HOME for the duration of this test so we never skip.
	origHome, hadHome := os.LookupEnv("HOME")
	origUserProfile, hadUserProfile := os.LookupEnv("USERPROFILE")
	t.Cleanup(func() {
		if hadHome {
			_ = os.Setenv("HOME", origHome)
		} else {
			_ = os.Unsetenv("HOME")
		}
		if hadUserProfile {
			_ = os.Setenv("USERPROFILE", origUserProfile)
		} else {
			_ = os.Unsetenv("USERPROFILE")
		}
	})

	home := t.TempDir()
	// Configure both env vars for cross-platform behavior of os.UserHomeDir.
	_ = os.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		_ = os.Setenv("USERPROFILE", home)
	}
	// raw path unaffected
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// empty path
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// ~ expansion
	p, err := ExpandHome("~")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p != home {
		t.Fatalf("expected %q, got %q", home, p)
	}
	// ~/subdir
	sub := "test-sub"
	exp, err := ExpandHome("~/" + sub)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if runtime.GOOS == "windows" {
		if filepath.Base(exp) != sub {
			t.Fatalf("unexpected expanded path: %q", exp)
		}
	} else {
		expected := filepath.Join(home, sub)
		if exp != expected {
			t.Fatalf("expected %q, got %q", expected, exp)
		}
	}
}

func TestResolvePath(t *testing.T) {
	if got, err := ResolvePath("/etc/modelcore", "models/a.gguf"); err != nil || got != filepath.Join("/etc/modelcore", "models", "a.gguf") {
		t.Fatalf("relative: got %q err=%v", got, err)
	}
	if got, err := ResolvePath("/etc/modelcore", "/abs/a.gguf"); err != nil || got != "/abs/a.gguf" {
		t.Fatalf("absolute: got %q err=%v", got, err)
	}
	if got, err := ResolvePath("/etc", ""); err != nil || got != "" {
		t.Fatalf("empty: got %q err=%v", got, err)
	}
	if got, err := ResolvePath("", "rel/x"); err != nil || got != filepath.Clean("rel/x") {
		t.Fatalf("no base: got %q err=%v", got, err)
	}
}

func TestPathExists(t *testing.T) {
	d := t.TempDir()
	if !PathExists(d) {
		t.Fatalf("temp dir should exist")
	}
	if PathExists(filepath.Join(d, "nope")) {
		t.Fatalf("missing file reported as existing")
	}
}
