package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/facilitydesk/chatsync/internal/config"
)

func TestDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".chatsync", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPaths(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"socket", SocketPath("test"), filepath.Join("profiles", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join("profiles", "test", "LOCK")},
		{"config", ConfigPath("test"), filepath.Join("profiles", "test", "config.toml")},
		{"log", LogPath("test"), filepath.Join("profiles", "test", "logs", "chatsyncd.log")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.got, base) || !strings.HasSuffix(tt.got, tt.want) {
				t.Errorf("%s path = %q, want %s/.../%s", tt.name, tt.got, base, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("%s not created: %v", dir, err)
		}
		if !info.IsDir() || info.Mode().Perm() != 0700 {
			t.Errorf("%s mode = %v, want dir 0700", dir, info.Mode())
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultName)
	}
	if err := config.Save(GlobalConfigPath(), &config.Config{DefaultProfile: "work"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Errorf("Resolve() = %q, want work", got)
	}
	if got := Resolve("other"); got != "other" {
		t.Errorf("Resolve(other) = %q, want other", got)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if _, err := Load("Bad Name"); err == nil {
		t.Error("Load() accepted an invalid name")
	}
	if _, err := Load("main"); err == nil {
		t.Error("Load() succeeded without a config file")
	}

	p := config.Defaults()
	p.SelfID = "42"
	p.APIBaseURL = "https://portal.example.com/api"
	p.SocketURL = "wss://portal.example.com:8080"
	if err := config.SaveProfile(ConfigPath("main"), &p); err != nil {
		t.Fatal(err)
	}
	got, err := Load("main")
	if err != nil {
		t.Fatal(err)
	}
	if got.SelfID != "42" {
		t.Errorf("SelfID = %q", got.SelfID)
	}
}
