package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/profedit/internal/account"
	"github.com/kalambet/profedit/internal/config"
	"github.com/kalambet/profedit/internal/editor"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
	"github.com/kalambet/profedit/internal/session"
)

// waitTimeout bounds how long a command follows a background save or upload.
const waitTimeout = 2 * time.Minute

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// --- login / logout ---

var loginCmd = &cobra.Command{
	Use:   "login <username-or-email>",
	Short: "Sign in to the remote profile store",
	Long: `Sign in to the remote profile store.

The password is read from --password or prompted for on stdin. When the
server is running it is signed in directly; otherwise the credential is
stored for the next start.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(ctx, "/login", map[string]string{
			"usernameOrEmail": args[0],
			"password":        password,
		})
		if errors.Is(err, errServerDown) {
			user, err := signInDirect(ctx, args[0], password)
			if err != nil {
				return err
			}
			printSuccess("Signed in as %s", user.Username)
			return nil
		}
		if err != nil {
			return err
		}

		var result struct {
			User profile.Identity `json:"user"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Signed in as %s", result.User.Username)
		return nil
	},
}

var signInDirect = func(ctx context.Context, usernameOrEmail, password string) (profile.Identity, error) {
	cfg, err := config.Load()
	if err != nil {
		return profile.Identity{}, fmt.Errorf("loading config: %w", err)
	}
	client := remote.New(cfg.Store.BaseURL, nil, cfg.StoreTimeout())
	svc := account.New(client, session.New(config.NewKeychain()), nil, nil)
	return svc.SignIn(ctx, usernameOrEmail, password)
}

var signOutDirect = func(ctx context.Context) error {
	return session.New(config.NewKeychain()).Teardown()
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(ctx, "/logout", nil)
		if errors.Is(err, errServerDown) {
			if err := signOutDirect(ctx); err != nil {
				return err
			}
			printSuccess("Signed out")
			return nil
		}
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Signed out")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("password", "", "password (prompted for when empty)")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View and edit your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(commandContext(cmd), "/profile")
		if err != nil {
			return err
		}
		var p editor.ProfileView
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asYAML {
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(p)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set a profile field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(commandContext(cmd), "/profile/edit/fields", map[string]string{field: value})
		if err != nil {
			return err
		}
		var v viewDoc
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}

		if msg, ok := v.Errors[field]; ok {
			printWarning("Set %s, but: %s", field, msg)
			return nil
		}
		printSuccess("Set %s = %s", field, value)
		return nil
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the profile form as YAML in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		noSubmit, _ := cmd.Flags().GetBool("no-submit")
		editorBin := os.Getenv("EDITOR")
		if editorBin == "" {
			editorBin = "vi"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(ctx, "/profile/edit")
		if err != nil {
			return err
		}
		var v viewDoc
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}
		if v.Phase != "ready" {
			return fmt.Errorf("profile is not loaded (%s)", v.Phase)
		}

		data, err := marshalForm(v.Form)
		if err != nil {
			return err
		}

		tmpFile, err := os.CreateTemp("", "profedit-profile-*.yaml")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if _, err := tmpFile.Write(data); err != nil {
			tmpFile.Close()
			return err
		}
		tmpFile.Close()

		editorCmd := exec.Command(editorBin, tmpPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			return fmt.Errorf("editor exited with error: %w", err)
		}

		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}
		form, err := unmarshalForm(edited)
		if err != nil {
			return err
		}

		resp, err = client.put(ctx, "/profile/edit/form", form)
		if err != nil {
			return err
		}
		var after viewDoc
		if err := decodeJSON(resp, &after); err != nil {
			return err
		}
		if noSubmit {
			printFieldErrors(after.Errors, profile.ValidatedFields)
			printSuccess("Profile form updated")
			return nil
		}
		return submitAndWait(ctx, client)
	},
}

const formHeader = "# Edit your profile. The avatar is changed with `profedit profile avatar`.\n"

func marshalForm(f profile.Form) ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding form: %w", err)
	}
	return append([]byte(formHeader), data...), nil
}

func unmarshalForm(data []byte) (profile.Form, error) {
	var f profile.Form
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return f, errors.New("edited profile is empty")
		}
		return f, fmt.Errorf("invalid YAML: %w", err)
	}
	return f, nil
}

var profileSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Validate and save the edited profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return submitAndWait(commandContext(cmd), client)
	},
}

// submitAndWait submits the form and follows the save to its outcome.
func submitAndWait(ctx context.Context, client *apiClient) error {
	resp, err := client.post(ctx, "/profile/edit/submit", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		var v viewDoc
		err := json.NewDecoder(resp.Body).Decode(&v)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decoding validation errors: %w", err)
		}
		printFieldErrors(v.Errors, profile.ValidatedFields)
		return errors.New("profile has validation errors")
	}
	var v viewDoc
	if err := decodeJSON(resp, &v); err != nil {
		return err
	}

	printStep("Saving profile...")
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	v, err = client.awaitView(ctx, func(v viewDoc) bool {
		return v.Save == "succeeded" || v.Save == "failed"
	})
	if err != nil {
		return err
	}
	if v.Save == "failed" {
		if v.Navigate == "login" {
			return fmt.Errorf("%s Run `profedit login` first.", v.SaveError)
		}
		return errors.New(v.SaveError)
	}
	printSuccess("Profile saved")
	return nil
}

var profileAvatarCmd = &cobra.Command{
	Use:   "avatar <file>",
	Short: "Upload a new profile picture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.postFile(ctx, "/profile/edit/avatar", "image", filepath.Base(args[0]), data)
		if err != nil {
			return err
		}
		var v viewDoc
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, waitTimeout)
		defer cancel()
		v, err = client.awaitView(ctx, func(v viewDoc) bool {
			if v.Upload.State == "uploading" {
				fmt.Fprintf(os.Stderr, "\r%s", progressBar(v.Upload.Progress))
			}
			return v.Upload.State == "succeeded" || v.Upload.State == "failed"
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		if v.Upload.State == "failed" {
			return errors.New(v.Upload.Error)
		}
		printSuccess("Avatar uploaded: %s", v.Form.Avatar)
		printStep("Run `profedit profile submit` to save it to your profile")
		return nil
	},
}

var profileReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Discard local edits and fetch the profile again",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(commandContext(cmd), "/profile/edit/reload", nil)
		if err != nil {
			return err
		}
		var v viewDoc
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}
		switch {
		case v.Phase == "ready" && v.Stale:
			printWarning("Store unreachable, showing the copy saved %s", v.SavedAt.Local().Format(time.RFC1123))
		case v.Phase == "ready":
			printSuccess("Profile reloaded")
		default:
			return errors.New(v.LoadError)
		}
		return nil
	},
}

var profileWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow edit state changes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, err = client.awaitView(commandContext(cmd), func(v viewDoc) bool {
			fmt.Fprintf(out, "%s  phase=%s save=%s upload=%s %d%%  errors=%d\n",
				colorize(colorCyan, time.Now().Format(time.TimeOnly)),
				v.Phase, v.Save, v.Upload.State, v.Upload.Progress, len(v.Errors))
			return false
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	profileShowCmd.Flags().Bool("yaml", false, "print YAML instead of JSON")
	profileEditCmd.Flags().Bool("no-submit", false, "update the form without saving it")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileEditCmd)
	profileCmd.AddCommand(profileSubmitCmd)
	profileCmd.AddCommand(profileAvatarCmd)
	profileCmd.AddCommand(profileReloadCmd)
	profileCmd.AddCommand(profileWatchCmd)
	profileCmd.AddCommand(groupCmd)
}

// --- profile group ---

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Edit education, languages and socialLinks entries",
}

func groupPath(group string, id ...string) string {
	p := "/profile/edit/groups/" + url.PathEscape(group)
	for _, s := range id {
		p += "/" + url.PathEscape(s)
	}
	return p
}

var groupListCmd = &cobra.Command{
	Use:   "list <group>",
	Short: "List the entries of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := profile.ParseGroup(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(commandContext(cmd), "/profile/edit")
		if err != nil {
			return err
		}
		var v viewDoc
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch group {
		case profile.GroupEducation:
			for _, e := range v.Form.Education {
				fmt.Fprintf(out, "%s  school=%q degree=%q years=%q\n", colorize(colorCyan, e.ID), e.School, e.Degree, e.Years)
			}
		case profile.GroupLanguages:
			for _, l := range v.Form.Languages {
				fmt.Fprintf(out, "%s  name=%q level=%q\n", colorize(colorCyan, l.ID), l.Name, l.Level)
			}
		case profile.GroupSocialLinks:
			for _, s := range v.Form.SocialLinks {
				fmt.Fprintf(out, "%s  platform=%q url=%q\n", colorize(colorCyan, s.ID), s.Platform, s.URL)
			}
		}
		return nil
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add <group> [key=value...]",
	Short: "Append a blank entry, optionally filling it in",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		fields, err := parsePairs(args[1:])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(ctx, groupPath(args[0]), nil)
		if err != nil {
			return err
		}
		var added struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &added); err != nil {
			return err
		}
		if len(fields) > 0 {
			resp, err := client.patch(ctx, groupPath(args[0], added.ID), fields)
			if err != nil {
				return err
			}
			var v viewDoc
			if err := decodeJSON(resp, &v); err != nil {
				return err
			}
		}
		printSuccess("Added %s entry %s", args[0], added.ID)
		return nil
	},
}

var groupUpdateCmd = &cobra.Command{
	Use:   "update <group> <id> key=value...",
	Short: "Change fields of an entry",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parsePairs(args[2:])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(commandContext(cmd), groupPath(args[0], args[1]), fields)
		if err != nil {
			return err
		}
		var v viewDoc
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}
		printSuccess("Updated %s entry %s", args[0], args[1])
		return nil
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <group> <id>",
	Short: "Remove an entry; the last one of a group cannot be removed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(commandContext(cmd), groupPath(args[0], args[1]))
		if err != nil {
			return err
		}
		var v viewDoc
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}
		printSuccess("Removed %s entry %s", args[0], args[1])
		return nil
	},
}

// parsePairs turns key=value arguments into a map.
func parsePairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}

func init() {
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupAddCmd)
	groupCmd.AddCommand(groupUpdateCmd)
	groupCmd.AddCommand(groupRemoveCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Restore a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
