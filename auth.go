package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/i18n"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/settings"
)

// ---------------------------------------------------------------------------
// auth (credential store)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
		Long: `Manage the credentials stored in the local data directory
($XDG_DATA_HOME/alerts-translate/auth.json). Stored values are used when
the environment and config file do not set them.

Providers:
  smartling     API user id + secret, account UID, project id
  openai        API key (+ optional compatible endpoint)

Examples:
  alerts-translate auth login                       Interactive provider selection
  alerts-translate auth login --provider smartling  Store a Smartling API user
  alerts-translate auth logout --provider openai    Remove the OpenAI key
  alerts-translate auth logout                      Remove all credentials
  alerts-translate auth list                        Show stored credentials`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// authProviders is the ordered list of providers for the interactive menu.
var authProviders = []struct {
	id   string
	name string
	desc string
}{
	{settings.ProviderSmartling, "Smartling", "API user, used by smartling-mt, smartling-jobs and smartling-file"},
	{settings.ProviderOpenAI, "OpenAI", "API key, used by the openai provider"},
}

func newAuthLoginCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for a provider",
		Long: `Store credentials for a provider. If --provider is not specified, you will
be prompted to choose. Leaving a prompt empty keeps the stored value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewScanner(cmd.InOrStdin())
			if provider == "" {
				choice, err := chooseProvider(in, os.Stderr)
				if err != nil {
					return err
				}
				provider = choice
			}
			switch provider {
			case settings.ProviderSmartling:
				return authLoginSmartling(in, os.Stderr)
			case settings.ProviderOpenAI:
				return authLoginOpenAI(in, os.Stderr)
			default:
				return fmt.Errorf("unknown provider '%s' (supported: %s, %s)", provider, settings.ProviderSmartling, settings.ProviderOpenAI)
			}
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to authenticate (smartling, openai)")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthProviders)

	return cmd
}

func completeAuthProviders(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	completions := make([]string, 0, len(authProviders))
	for _, p := range authProviders {
		completions = append(completions, fmt.Sprintf("%s\t%s", p.id, p.name))
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// chooseProvider shows the provider menu and reads a number or a name.
func chooseProvider(in *bufio.Scanner, out io.Writer) (string, error) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s%s%s\n\n", colorBlue, i18n.T("Select provider to authenticate:"), colorReset)
	for i, p := range authProviders {
		fmt.Fprintf(out, "  %d. %s%-10s%s %s\n", i+1, colorYellow, p.id, colorReset, p.desc)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s ", i18n.T("Enter choice (number or name):"))

	choice, ok := readLine(in)
	if !ok {
		return "", fmt.Errorf("no input received")
	}
	for i, p := range authProviders {
		if choice == fmt.Sprintf("%d", i+1) || choice == p.id {
			return p.id, nil
		}
	}
	return "", fmt.Errorf("invalid choice. Use: alerts-translate auth login --provider PROVIDER")
}

func readLine(in *bufio.Scanner) (string, bool) {
	if !in.Scan() {
		return "", false
	}
	return strings.TrimSpace(in.Text()), true
}

// prompt asks for a value, showing current (masked when secret). An empty
// answer keeps current.
func prompt(in *bufio.Scanner, out io.Writer, label, current string, secret bool) string {
	shown := current
	if secret {
		shown = settings.MaskKey(current)
	}
	if shown != "" {
		fmt.Fprintf(out, "  %s [%s]: ", label, shown)
	} else {
		fmt.Fprintf(out, "  %s: ", label)
	}
	v, ok := readLine(in)
	if !ok || v == "" {
		return current
	}
	return v
}

func authLoginSmartling(in *bufio.Scanner, out io.Writer) error {
	fmt.Fprintf(out, "\n%sSmartling API User%s\n", colorBlue, colorReset)
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintln(out)

	existing := settings.GetUser(settings.ProviderSmartling)
	if existing == nil {
		existing = &settings.Info{}
	}

	info := settings.Info{
		UserID:     prompt(in, out, i18n.T("User identifier"), existing.UserID, false),
		Secret:     prompt(in, out, i18n.T("User secret"), existing.Secret, true),
		AccountUID: prompt(in, out, i18n.T("Account UID"), existing.AccountUID, false),
		ProjectID:  prompt(in, out, i18n.T("Project ID"), existing.ProjectID, false),
	}
	if info.UserID == "" || info.Secret == "" {
		return fmt.Errorf("user identifier and secret are required")
	}
	if err := settings.SetUser(settings.ProviderSmartling, info); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	logSuccess("%s", i18n.T("Smartling credentials saved!"))
	return nil
}

func authLoginOpenAI(in *bufio.Scanner, out io.Writer) error {
	fmt.Fprintf(out, "\n%sOpenAI%s\n", colorBlue, colorReset)
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintln(out)

	var key, baseURL string
	if e := settings.Get(settings.ProviderOpenAI); e != nil {
		key, baseURL = e.Key, e.BaseURL
	}
	key = prompt(in, out, i18n.T("API key"), key, true)
	baseURL = prompt(in, out, i18n.T("Base URL (empty for api.openai.com)"), baseURL, false)
	if key == "" {
		return fmt.Errorf("no API key provided")
	}
	if err := settings.SetAPIKey(settings.ProviderOpenAI, key, baseURL); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}
	logSuccess("%s", i18n.T("OpenAI API key saved!"))
	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one or all providers.

If --provider is not specified, credentials for ALL providers are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				if err := settings.RemoveAll(); err != nil {
					return fmt.Errorf("removing credentials: %w", err)
				}
				logSuccess("%s", i18n.T("All stored credentials removed"))
				return nil
			}
			if provider != settings.ProviderSmartling && provider != settings.ProviderOpenAI {
				return fmt.Errorf("unknown provider '%s'. Run 'alerts-translate auth list' to see providers", provider)
			}
			if err := settings.Remove(provider); err != nil {
				return fmt.Errorf("removing %s credentials: %w", provider, err)
			}
			logSuccess(i18n.T("%s credentials removed"), provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to logout (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthProviders)

	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			printCredentials(os.Stderr)
		},
	}
}

func printCredentials(out io.Writer) {
	fmt.Fprintf(out, "\n%s%s%s\n", colorBlue, i18n.T("Stored Credentials"), colorReset)
	fmt.Fprintln(out, strings.Repeat("─", 60))

	for _, p := range authProviders {
		fmt.Fprintf(out, "  %-10s %s\n", p.id, credentialStatus(settings.Get(p.id)))
	}

	fmt.Fprintf(out, "\n  %s%s%s\n", colorYellow, i18n.T("Environment Variables"), colorReset)
	envVars := []struct {
		name   string
		secret bool
	}{
		{"SMARTLING_USER_ID", false},
		{"SMARTLING_USER_SECRET", true},
		{"SMARTLING_USER_SECRET_FILE", false},
		{"OPENAI_API_KEY", true},
	}
	for _, ev := range envVars {
		v := os.Getenv(ev.name)
		if v == "" {
			fmt.Fprintf(out, "  %s: %s%s%s\n", ev.name, colorRed, i18n.T("not set"), colorReset)
			continue
		}
		if ev.secret {
			v = settings.MaskKey(v)
		}
		fmt.Fprintf(out, "  %s: %s%s%s %s\n", ev.name, colorGreen, v, colorReset, i18n.T("(overrides stored values)"))
	}
	fmt.Fprintln(out)
}

// credentialStatus describes one stored entry.
func credentialStatus(e *settings.Info) string {
	switch {
	case e == nil:
		return colorRed + i18n.T("not configured") + colorReset
	case e.IsUser():
		s := fmt.Sprintf("%s%s%s (user: %s, secret: %s)", colorGreen, i18n.T("configured"), colorReset, e.UserID, settings.MaskKey(e.Secret))
		if e.AccountUID != "" {
			s += "\n" + fmt.Sprintf("  %10s account: %s", "", e.AccountUID)
		}
		if e.ProjectID != "" {
			s += "\n" + fmt.Sprintf("  %10s project: %s", "", e.ProjectID)
		}
		return s
	case e.IsAPI() && e.Key != "":
		s := fmt.Sprintf("%s%s%s (key: %s)", colorGreen, i18n.T("configured"), colorReset, settings.MaskKey(e.Key))
		if e.BaseURL != "" {
			s += "\n" + fmt.Sprintf("  %10s endpoint: %s", "", e.BaseURL)
		}
		return s
	default:
		return colorRed + i18n.T("not configured") + colorReset
	}
}
