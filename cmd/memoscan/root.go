package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "memoscan",
	Short: "Brand memorability scanner",
	Long: `memoscan crawls a brand's website, ranks its most brand-relevant
pages, extracts their content and streams an LLM-based analysis of how
memorable the brand presence is.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
}
