package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/user/interview-coach/internal/store"
	"github.com/user/interview-coach/internal/summary"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <session-id>",
	Short: "Print the scorecard of a stored session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	vocab, err := loadVocabulary(cfg)
	if err != nil {
		return err
	}

	card, err := summary.Build(cmd.Context(), st, vocab, args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %s not found", args[0])
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(card)
}
