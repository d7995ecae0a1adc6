package cli

import (
	"fmt"
	"log"
	"net/url"

	"pollctl/internal/client/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change client settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		path, _ := config.GetConfigPath()
		live, err := cfg.LiveURL()
		if err != nil {
			live = "(invalid: " + err.Error() + ")"
		}

		fmt.Printf("Config file:   %s\n", path)
		fmt.Printf("API URL:       %s\n", cfg.APIURL)
		fmt.Printf("Live URL:      %s\n", live)
		fmt.Printf("Share base:    %s\n", cfg.ShareBaseURL)
		fmt.Printf("Poll interval: %s\n", cfg.PollInterval)
	},
}

var configSetURLCmd = &cobra.Command{
	Use:   "set-url <api-url>",
	Short: "Point pollctl at a poll service",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}

		apiURL := args[0]
		if u, err := url.Parse(apiURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			log.Fatalf("Error: %q is not an http(s) URL", apiURL)
		}
		cfg.APIURL = apiURL

		if ws, _ := cmd.Flags().GetString("ws-url"); ws != "" {
			cfg.WSURL = ws
		}
		if shareURL, _ := cmd.Flags().GetString("share-url"); shareURL != "" {
			cfg.ShareBaseURL = shareURL
		}

		if err := config.SaveConfig(cfg); err != nil {
			log.Fatalf("Error saving config: %v", err)
		}
		path, _ := config.GetConfigPath()
		fmt.Printf("API URL saved to %s\n", path)
	},
}

func init() {
	configSetURLCmd.Flags().String("ws-url", "", "live-results base URL (derived from the API URL when empty)")
	configSetURLCmd.Flags().String("share-url", "", "origin used in vote links")
	configCmd.AddCommand(configShowCmd, configSetURLCmd)
}
