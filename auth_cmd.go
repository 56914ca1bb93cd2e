package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/auth"
	"github.com/fluidzero/fz-cli/internal/config"
	"github.com/fluidzero/fz-cli/internal/credfile"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
	}

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newWhoamiCmd())

	return cmd
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the device authorization flow",
		Args:  noArgs,
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved credentials",
		Args:  noArgs,
		RunE:  runLogout,
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local credential state without calling the backend",
		Args:  noArgs,
		RunE:  runAuthStatus,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the current token",
		Args:  noArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	rec, err := auth.Login(cmd.Context(), auth.LoginConfig{
		ClientID:        resolvedCfg.OAuthClientID,
		DeviceAuthURL:   resolvedCfg.DeviceAuthURL,
		TokenURL:        resolvedCfg.TokenURL,
		APIURL:          resolvedCfg.APIURL,
		CredentialsPath: resolvedCfg.CredentialsPath,
		HTTPClient:      defaultHTTPClient(),
	}, func(da auth.DeviceAuth) {
		uri := da.VerificationURI
		if da.VerificationURIComplete != "" {
			uri = da.VerificationURIComplete
		}

		// Device code prompts must always be visible — not suppressed by --quiet.
		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", uri)
		fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)

		if err := openBrowser(uri); err != nil {
			logger.Debug("could not open browser", "error", err.Error())
		}
	}, logger)
	if err != nil {
		return err
	}

	statusf("Login successful. Session valid until %s.\n",
		time.Unix(rec.ExpiresAt, 0).Local().Format(time.RFC1123))

	return nil
}

// openBrowser launches the platform browser. Failure is fine: the URL is
// already printed, so the user can open it by hand (SSH sessions, headless
// machines).
func openBrowser(uri string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", uri)
	case "linux":
		cmd = exec.Command("xdg-open", uri)
	default:
		return fmt.Errorf("no browser launcher for %s", runtime.GOOS)
	}

	return cmd.Start()
}

func runLogout(_ *cobra.Command, _ []string) error {
	if err := credfile.Delete(resolvedCfg.CredentialsPath); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

// authStatusOutput is the JSON schema for `auth status --output json`.
type authStatusOutput struct {
	Authenticated bool   `json:"authenticated"`
	Mode          string `json:"mode,omitempty"`
	APIURL        string `json:"api_url,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	Expired       bool   `json:"expired,omitempty"`
}

func runAuthStatus(_ *cobra.Command, _ []string) error {
	out := authStatusOutput{}

	switch {
	case resolvedCfg.ClientID != "" && resolvedCfg.ClientSecret != "":
		out.Authenticated = true
		out.Mode = string(auth.ModeM2M)
		out.APIURL = resolvedCfg.APIURL

	default:
		rec, err := credfile.Load(resolvedCfg.CredentialsPath)
		if err != nil {
			return err
		}

		if rec != nil {
			expiry := time.Unix(rec.ExpiresAt, 0)
			out.Authenticated = true
			out.Mode = string(auth.ModeDevice)
			out.APIURL = rec.APIURL
			out.ExpiresAt = expiry.UTC().Format(time.RFC3339)
			out.Expired = time.Now().After(expiry)
		}
	}

	if resolvedCfg.Output == config.OutputJSON {
		return printJSON(out)
	}

	if !out.Authenticated {
		fmt.Println("Not authenticated. Run 'fz auth login' or set FZ_CLIENT_ID/FZ_CLIENT_SECRET.")
		return nil
	}

	fmt.Printf("Mode:    %s\n", out.Mode)
	fmt.Printf("API URL: %s\n", out.APIURL)

	if out.Mode == string(auth.ModeDevice) {
		state := "valid"
		if out.Expired {
			state = "expired (will refresh on next use)"
		}

		fmt.Printf("Access token: %s, expires %s\n", state, out.ExpiresAt)
	}

	return nil
}

// whoamiOutput is the JSON schema for `whoami --output json`.
type whoamiOutput struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
	OrgID   string `json:"org_id,omitempty"`
	Mode    string `json:"mode"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	mgr := newAuthManager(logger)

	tok, err := mgr.Token(cmd.Context())
	if err != nil {
		return err
	}

	out := whoamiOutput{Mode: string(mgr.Mode())}

	// Best-effort identity from the token's claims; the backend has no
	// dedicated identity endpoint.
	claims := auth.Claims(tok)
	if sub, ok := claims["sub"].(string); ok {
		out.Subject = sub
	}

	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}

	if org, ok := claims["org_id"].(string); ok {
		out.OrgID = org
	}

	if resolvedCfg.Output == config.OutputJSON {
		return printJSON(out)
	}

	fmt.Printf("Subject: %s\n", out.Subject)

	if out.Email != "" {
		fmt.Printf("Email:   %s\n", out.Email)
	}

	if out.OrgID != "" {
		fmt.Printf("Org:     %s\n", out.OrgID)
	}

	fmt.Printf("Mode:    %s\n", out.Mode)

	return nil
}
