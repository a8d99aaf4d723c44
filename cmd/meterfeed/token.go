package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfeed/internal/config"
	"github.com/jgoulah/meterfeed/internal/scraper"
)

var tokenStrategy string

var tokenCmd = &cobra.Command{
	Use:   "token [html-file]",
	Short: "Extract the anti-forgery token from a saved login page",
	Long: `Runs token extraction against a saved copy of the login page, for checking
whether a portal change broke login. Use '-' to read stdin.

Strategies: regex (default, same as the job), html`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenStrategy, "strategy", config.TokenRegex, "Extraction strategy (regex or html)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	extractor, err := scraper.NewTokenExtractor(tokenStrategy)
	if err != nil {
		return err
	}

	var page []byte
	if args[0] == "-" {
		page, err = io.ReadAll(os.Stdin)
	} else {
		page, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading page: %w", err)
	}

	token, err := extractor.Extract(string(page))
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
