package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crawlingchimp/crawlingchimp/internal/config"
)

//go:embed templates/crawlingchimp.yaml
var siteTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a site file with commented examples",
		Long: `Init creates a .crawlingchimp.yaml site file in the current directory.

The site file holds per-host cookies, headers, crawl depth, User-Agent and
URL patterns to ignore or follow.

Examples:
  # Create .crawlingchimp.yaml in the current directory
  crawlingchimp init

  # Create the site file at a specific path
  crawlingchimp init -o sites.yaml

  # Overwrite an existing file
  crawlingchimp init --force`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile, "Output file path for the site file")
	cmd.Flags().Bool("force", false, "Overwrite an existing site file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("site file already exists: %s (use --force to overwrite)", outputPath)
		}
	}

	content, err := siteTemplate.ReadFile("templates/crawlingchimp.yaml")
	if err != nil {
		return fmt.Errorf("failed to read site file template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write site file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created site file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure per-host settings such as:")
	fmt.Fprintln(out, "  - cookies and headers")
	fmt.Fprintln(out, "  - crawl depth")
	fmt.Fprintln(out, "  - URL patterns to ignore or follow")
	return nil
}
