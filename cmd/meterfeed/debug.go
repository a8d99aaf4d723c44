package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfeed/internal/config"
	"github.com/jgoulah/meterfeed/internal/scraper"
)

var (
	debugVisible bool
	debugOutput  string
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Render the login page in Chrome to debug token extraction",
	Long: `Loads the portal login page in a real browser and reports what each token
extraction strategy finds in the rendered HTML, along with the cookies the
portal set.

Flags:
  --visible    Show the browser window
  --output     Save the rendered HTML to a file`,
	RunE: runDebug,
}

func init() {
	debugCmd.Flags().BoolVar(&debugVisible, "visible", false, "Show browser window")
	debugCmd.Flags().StringVar(&debugOutput, "output", "", "Save HTML to this file")
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	auth, err := scraper.NewAuthenticator(scraper.AuthenticatorOptions{
		BaseURL:   cfg.Portal.BaseURL,
		UserAgent: cfg.Portal.UserAgent,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Rendering %sAccount/Login...\n", cfg.Portal.BaseURL)
	page, err := auth.RenderLoginPage(context.Background(), debugVisible)
	if err != nil {
		return err
	}
	fmt.Printf("Rendered %d bytes of HTML\n", len(page.HTML))

	if debugOutput != "" {
		if err := os.WriteFile(debugOutput, []byte(page.HTML), 0644); err != nil {
			return fmt.Errorf("saving HTML: %w", err)
		}
		fmt.Printf("✓ Saved HTML to %s\n", debugOutput)
	}

	fmt.Println("\nToken extraction:")
	for _, strategy := range []string{config.TokenRegex, config.TokenHTML} {
		extractor, err := scraper.NewTokenExtractor(strategy)
		if err != nil {
			return err
		}
		token, err := extractor.Extract(page.HTML)
		if err != nil {
			fmt.Printf("  %-6s ✗ %v\n", strategy, err)
			continue
		}
		fmt.Printf("  %-6s ✓ %s (%d chars)\n", strategy, token, len(token))
	}

	fmt.Printf("\nCookies (%d):\n", len(page.Cookies))
	for _, c := range page.Cookies {
		fmt.Printf("  %s (domain %s, path %s, httponly %t)\n", c.Name, c.Domain, c.Path, c.HttpOnly)
	}

	return nil
}
