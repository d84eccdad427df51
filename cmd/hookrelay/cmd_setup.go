package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/hookrelay/internal/authflow"
	"github.com/user/hookrelay/internal/config"
	"github.com/user/hookrelay/internal/envvar"
	"github.com/user/hookrelay/internal/gateway"
)

const apiKeyEnvVar = "HOOKRELAY_API_KEY"

var (
	setupAPIKey   string
	setupDomain   string
	setupConsole  string
	setupClear    bool
	setupMDM      bool
	setupAdminKey string
	setupDeviceID string
	setupAppName  string
)

func init() {
	setupCmd.Flags().StringVar(&setupAPIKey, "api-key", "", "use this API key instead of the browser login")
	setupCmd.Flags().StringVar(&setupDomain, "domain", "", "collector domain or URL (overrides the configured gateway)")
	setupCmd.Flags().StringVar(&setupConsole, "console", "https://console.getunbound.ai/login", "web console login URL")
	setupCmd.Flags().BoolVar(&setupClear, "clear", false, "remove the stored credential")
	setupCmd.Flags().BoolVar(&setupMDM, "mdm", false, "managed install: exchange an admin key for a device key")
	setupCmd.Flags().StringVar(&setupAdminKey, "admin-key", "", "admin API key (managed installs)")
	setupCmd.Flags().StringVar(&setupDeviceID, "device-id", "", "device serial number (managed installs)")
	setupCmd.Flags().StringVar(&setupAppName, "app-name", "", "application name registered for this device (managed installs)")
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Obtain and store the collector credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		if setupClear {
			return runClear(cfg)
		}

		if setupDomain != "" {
			cfg.Gateway.BaseURL = normalizeURL(setupDomain)
		}

		apiKey := setupAPIKey
		var err error
		switch {
		case setupMDM:
			if setupAdminKey == "" || setupDeviceID == "" {
				return errors.New("--mdm requires --admin-key and --device-id")
			}
			apiKey, err = gateway.FetchMDMKey(cmd.Context(), cfg.Gateway.BaseURL, setupAppName, setupAdminKey, setupDeviceID)
			if err != nil {
				return fmt.Errorf("managed key exchange: %w", err)
			}
		case apiKey == "":
			res, err := authflow.Capture(cmd.Context(), setupConsole)
			if err != nil {
				return fmt.Errorf("browser login: %w", err)
			}
			apiKey = res.APIKey()
			if apiKey == "" {
				return errors.New("login completed without an API key")
			}
		}

		client := gateway.NewClient(cfg.Gateway.BaseURL, apiKey, cfg.Gateway.Integration)
		if err := client.VerifyKey(cmd.Context()); err != nil {
			return fmt.Errorf("key verification: %w", err)
		}

		hint, err := envvar.Set(apiKeyEnvVar, apiKey)
		if err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}

		cfg.Gateway.APIKey = apiKey
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println("Setup complete.")
		fmt.Println(hint)
		return nil
	},
}

// normalizeURL turns a bare domain into an https URL and strips any
// trailing slash.
func normalizeURL(domain string) string {
	u := strings.TrimSpace(domain)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return strings.TrimRight(u, "/")
}

func runClear(cfg *config.Config) error {
	if err := envvar.Remove(apiKeyEnvVar); err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	cfg.Gateway.APIKey = ""
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println("Credential cleared.")
	return nil
}
