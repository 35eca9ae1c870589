package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/config"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/i18n"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/metrics"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/settings"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/smartling"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/translate"
)

// isolateEnv clears every setting the commands read.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, k := range []string{
		"SOURCE_URL", "DESTINATION_BUCKET_URL", "TARGET_LANGUAGES", "CONCURRENCY_LIMIT",
		"PROVIDER", "TRANSLATE_POLICY", "SMARTLING_USER_ID", "SMARTLING_USER_SECRET",
		"SMARTLING_USER_SECRET_FILE", "SMARTLING_ACCOUNT_UID", "SMARTLING_PROJECT_ID",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "S3_ACCESS_KEY", "S3_SECRET_KEY",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return dir
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	want := []string{"auth", "config", "consume", "handle-event", "local", "run", "serve", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
	for _, flag := range []string{"config", "env-file", "lang"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Fatalf("root is missing --%s", flag)
		}
	}
	serve, _, _ := root.Find([]string{"serve"})
	for _, flag := range []string{"source", "destination", "langs", "provider", "interval", "metrics"} {
		if serve.Flags().Lookup(flag) == nil {
			t.Fatalf("serve is missing --%s", flag)
		}
	}
}

func TestNewTranslatorFactory(t *testing.T) {
	t.Run("mock", func(t *testing.T) {
		f, err := newTranslatorFactory(&config.Config{Provider: config.ProviderMock}, nil)
		if err != nil {
			t.Fatalf("newTranslatorFactory() error: %v", err)
		}
		tr, _ := f("s3://b/Alerts.pb")
		if _, ok := tr.(translate.Mock); !ok {
			t.Fatalf("translator = %T, want translate.Mock", tr)
		}
	})

	t.Run("jobs uses source as file URI", func(t *testing.T) {
		cfg := &config.Config{
			Provider:  smartling.StrategyJobs,
			Smartling: config.Smartling{UserID: "u", UserSecret: "s", ProjectID: "p"},
		}
		f, err := newTranslatorFactory(cfg, nil)
		if err != nil {
			t.Fatalf("newTranslatorFactory() error: %v", err)
		}
		tr, err := f("s3://feeds/Alerts_enhanced.json")
		if err != nil {
			t.Fatalf("factory error: %v", err)
		}
		jb, ok := tr.(*smartling.JobBatch)
		if !ok || jb.FileURI != "s3://feeds/Alerts_enhanced.json" {
			t.Fatalf("translator = %#v", tr)
		}
	})

	t.Run("openai needs a key", func(t *testing.T) {
		if _, err := newTranslatorFactory(&config.Config{Provider: "openai"}, nil); err == nil {
			t.Fatal("newTranslatorFactory(openai) without key should fail")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := newTranslatorFactory(&config.Config{Provider: "deepl"}, nil); err == nil {
			t.Fatal("newTranslatorFactory(deepl) should fail")
		}
	})
}

func TestRunCommandWithMockProvider(t *testing.T) {
	dir := isolateEnv(t)
	src := filepath.Join(dir, "Alerts.json")
	dst := filepath.Join(dir, "out", "Alerts.json")
	report := filepath.Join(dir, "report.yaml")
	body := `{"header": {"gtfs_realtime_version": "2.0", "timestamp": 1},
  "entity": [{"id": "1", "alert": {"header_text": {"translation": [{"text": "Delays", "language": "en"}]}}}]}`
	if err := os.WriteFile(src, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	root := newRootCmd()
	root.SetArgs([]string{
		"run", "--env-file", filepath.Join(dir, ".env"),
		"--provider", "mock", "--langs", "es,fr",
		"--source", src, "--destination", dst, "--report", report,
	})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	out, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("destination not written: %v", err)
	}
	for _, want := range []string{"[es] Delays", "[fr] Delays"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("destination missing %q:\n%s", want, out)
		}
	}
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var rep metrics.Report
	if err := yaml.Unmarshal(data, &rep); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if !rep.Uploaded || !rep.FirstRun || rep.Metrics.StringsTranslated != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRunCommandRequiresDestination(t *testing.T) {
	dir := isolateEnv(t)
	root := newRootCmd()
	root.SetArgs([]string{"run", "--env-file", filepath.Join(dir, ".env"), "--provider", "mock", "--source", "s3://b/Alerts.pb"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "DESTINATION_BUCKET_URL") {
		t.Fatalf("Execute() error = %v, want missing destination", err)
	}
}

func TestServeLoopRunsImmediatelyAndOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runs := 0
	done := make(chan struct{})
	go func() {
		serveLoop(ctx, time.Millisecond, func(context.Context) {
			runs++
			if runs == 3 {
				cancel()
			}
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serveLoop did not stop after cancel")
	}
	if runs != 3 {
		t.Fatalf("runs = %d, want 3", runs)
	}
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, []byte(`{"Records":[]}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := readInput([]string{path})
	if err != nil || string(got) != `{"Records":[]}` {
		t.Fatalf("readInput() = %q, %v", got, err)
	}
	if _, err := readInput([]string{path + ".missing"}); err == nil {
		t.Fatal("readInput(missing) should fail")
	}
}

func TestChooseProvider(t *testing.T) {
	tests := []struct {
		input string
		want  string
		fail  bool
	}{
		{input: "1\n", want: settings.ProviderSmartling},
		{input: "openai\n", want: settings.ProviderOpenAI},
		{input: "9\n", fail: true},
		{input: "", fail: true},
	}
	for _, tc := range tests {
		var out bytes.Buffer
		got, err := chooseProvider(bufio.NewScanner(strings.NewReader(tc.input)), &out)
		if tc.fail {
			if err == nil {
				t.Fatalf("chooseProvider(%q) = %q, want error", tc.input, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("chooseProvider(%q) = %q, %v, want %q", tc.input, got, err, tc.want)
		}
	}
}

func TestAuthLoginSmartlingKeepsStoredValues(t *testing.T) {
	isolateEnv(t)
	if err := settings.SetUser(settings.ProviderSmartling, settings.Info{UserID: "old", Secret: "old-secret", AccountUID: "acct"}); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	// The empty third answer keeps the stored account.
	in := bufio.NewScanner(strings.NewReader("new\nnew-secret\n\nproj\n"))
	if err := authLoginSmartling(in, &bytes.Buffer{}); err != nil {
		t.Fatalf("authLoginSmartling() error: %v", err)
	}
	u := settings.GetUser(settings.ProviderSmartling)
	if u == nil || u.UserID != "new" || u.Secret != "new-secret" || u.AccountUID != "acct" || u.ProjectID != "proj" {
		t.Fatalf("stored user = %#v", u)
	}
}

func TestCredentialStatus(t *testing.T) {
	i18n.Init("en")
	if got := credentialStatus(nil); !strings.Contains(got, "not configured") {
		t.Fatalf("credentialStatus(nil) = %q", got)
	}
	got := credentialStatus(&settings.Info{Type: "api", Key: "sk-1234567890"})
	if !strings.Contains(got, "sk-1...7890") || strings.Contains(got, "sk-1234567890") {
		t.Fatalf("credentialStatus(api) = %q", got)
	}
	got = credentialStatus(&settings.Info{Type: "user", UserID: "u", Secret: "secretvalue", ProjectID: "p"})
	if !strings.Contains(got, "user: u") || !strings.Contains(got, "project: p") || strings.Contains(got, "secretvalue") {
		t.Fatalf("credentialStatus(user) = %q", got)
	}
}
