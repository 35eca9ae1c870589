package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirAndFilePathUseXDGDataHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir() error: %v", err)
	}
	wantDir := filepath.Join(tmp, "alerts-translate")
	if dir != wantDir {
		t.Fatalf("DataDir() = %q, want %q", dir, wantDir)
	}

	wantPath := filepath.Join(tmp, "alerts-translate", "auth.json")
	if got := FilePath(); got != wantPath {
		t.Fatalf("FilePath() = %q, want %q", got, wantPath)
	}
}

func TestSaveLoadRemoveLifecycle(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	store := Store{
		ProviderOpenAI:    {Type: "api", Key: "sk-123456789"},
		ProviderSmartling: {Type: "user", UserID: "uid", Secret: "sec", AccountUID: "acct"},
	}
	if err := Save(store); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	path := filepath.Join(tmp, "alerts-translate", "auth.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat auth.json: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("auth.json mode = %o, want 600", info.Mode().Perm())
	}

	if got := GetAPIKey(ProviderOpenAI); got != "sk-123456789" {
		t.Fatalf("GetAPIKey(openai) = %q", got)
	}
	if u := GetUser(ProviderSmartling); u == nil || u.Secret != "sec" {
		t.Fatalf("GetUser(smartling) = %#v", u)
	}
	if GetUser(ProviderOpenAI) != nil {
		t.Fatal("GetUser(openai) should be nil for an api entry")
	}

	if err := Remove(ProviderOpenAI); err != nil {
		t.Fatalf("Remove(openai) error: %v", err)
	}
	if got := GetAPIKey(ProviderOpenAI); got != "" {
		t.Fatalf("GetAPIKey after remove = %q, want empty", got)
	}
	if GetUser(ProviderSmartling) == nil {
		t.Fatal("smartling user should remain after removing openai")
	}
	if err := Remove("missing-provider"); err != nil {
		t.Fatalf("Remove(missing) should be no-op, got: %v", err)
	}

	if err := RemoveAll(); err != nil {
		t.Fatalf("RemoveAll() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("auth.json should be removed, stat err=%v", err)
	}
	if got := Load(); len(got) != 0 {
		t.Fatalf("Load() after RemoveAll should be empty, got=%#v", got)
	}
}

func TestLoadInvalidFileReturnsEmptyStore(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)
	dir := filepath.Join(tmp, "alerts-translate")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "auth.json"), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if got := Load(); got == nil || len(got) != 0 {
		t.Fatalf("Load() = %#v, want empty store", got)
	}
}

func TestSetUserPreservesAccountAndProject(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if err := SetUser(ProviderSmartling, Info{UserID: "old", Secret: "s1", AccountUID: "acct", ProjectID: "proj"}); err != nil {
		t.Fatalf("SetUser() error: %v", err)
	}
	if err := SetUser(ProviderSmartling, Info{UserID: "new", Secret: "s2"}); err != nil {
		t.Fatalf("SetUser() error: %v", err)
	}
	got := GetUser(ProviderSmartling)
	if got.UserID != "new" || got.Secret != "s2" {
		t.Fatalf("user = %#v", got)
	}
	if got.AccountUID != "acct" || got.ProjectID != "proj" {
		t.Fatalf("account/project not preserved: %#v", got)
	}
}

func TestReadSecretFileAndMaskKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("top-secret\r\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if got, err := ReadSecretFile(path); err != nil || got != "top-secret" {
		t.Fatalf("ReadSecretFile() = %q, %v", got, err)
	}
	if _, err := ReadSecretFile(path + ".missing"); err == nil {
		t.Fatal("ReadSecretFile(missing) should fail")
	}

	cases := map[string]string{
		"":          "",
		"short":     "****",
		"12345678":  "****",
		"123456789": "1234...6789",
	}
	for in, want := range cases {
		if got := MaskKey(in); got != want {
			t.Fatalf("MaskKey(%q) = %q, want %q", in, got, want)
		}
	}
}
