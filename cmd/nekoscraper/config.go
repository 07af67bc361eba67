package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nekoscraper/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage nekoscraper configuration.

Configuration is layered, highest priority first:
  - Command line flags
  - Environment variables (NEKOSCRAPER_*)
  - .env file
  - Configuration file (.nekoscraper.yaml)
  - Built-in defaults`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write the full default configuration, including both cleaning
profiles and all selector chains, to a YAML file for editing.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the merged configuration from all sources as YAML.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from all sources and check it: URL shape,
delay ordering, selector presence, cleaning profile bounds and detector
thresholds.`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".nekoscraper.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	fmt.Printf("Configuration file created: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Adjust delays, selectors and cleaning profiles as needed")
	fmt.Println("2. Run 'nekoscraper config validate' to check the result")
	fmt.Println("3. Start with 'nekoscraper scrape'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Load already validates; reaching here means it passed
	if _, err := loadConfig(nil); err != nil {
		return err
	}
	fmt.Println("Configuration is valid.")
	return nil
}
