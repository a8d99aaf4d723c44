package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfeed/internal/scraper"
)

var (
	normalizeOut string
	normalizeTZ  string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [csv-file]",
	Short: "Convert a downloaded CSV export to series JSON",
	Long: `Reads a W1000 CSV export (';' separated, header first) and prints the
series JSON that 'run' would publish for it. Use '-' to read stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runNormalize,
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeOut, "out", "", "Write JSON to this file instead of stdout")
	normalizeCmd.Flags().StringVar(&normalizeTZ, "tz", "Local", "Time zone the export's timestamps are in")
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(normalizeTZ)
	if err != nil {
		return fmt.Errorf("loading time zone: %w", err)
	}

	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening export: %w", err)
		}
		defer f.Close()
		in = f
	}

	data, err := scraper.NormalizeJSON(in, loc)
	if err != nil {
		return err
	}

	if normalizeOut == "" {
		fmt.Println(string(data))
		return nil
	}

	if err := os.WriteFile(normalizeOut, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", normalizeOut, err)
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(data), normalizeOut)
	return nil
}
