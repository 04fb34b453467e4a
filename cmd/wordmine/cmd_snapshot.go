package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wordmine/wordmine/internal/vocab"
)

func newSnapshotCmd() *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Vocabulary snapshot utilities",
	}

	var file string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Load and validate a vocabulary snapshot",
		Long:  "Parse the snapshot, rebuild every index, and print band, part-of-speech and embedding statistics.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSnapshotVerify(file)
		},
	}
	verifyCmd.Flags().StringVar(&file, "file", "data/vocab_snapshot.json", "snapshot file to verify")

	snapshotCmd.AddCommand(verifyCmd)
	return snapshotCmd
}

func runSnapshotVerify(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read snapshot file %s: %w", file, err)
	}

	store, err := vocab.Load(data)
	if err != nil {
		return err
	}

	stats := store.Stats()
	fmt.Printf("Snapshot %s\n", file)
	fmt.Printf("  version:            %s\n", stats.Version)
	fmt.Printf("  senses:             %d\n", stats.SenseCount)
	fmt.Printf("  lemmas:             %d\n", stats.LemmaCount)
	fmt.Printf("  embedding coverage: %.1f%%\n", stats.EmbeddingCoverage*100)

	fmt.Println("  senses per band:")
	for _, band := range vocab.Bands {
		fmt.Printf("    %5d: %d\n", band, stats.BandCounts[band])
	}

	fmt.Println("  senses per part of speech:")
	poses := make([]string, 0, len(stats.POSCounts))
	for pos := range stats.POSCounts {
		poses = append(poses, pos)
	}
	sort.Strings(poses)
	for _, pos := range poses {
		fmt.Printf("    %s: %d\n", pos, stats.POSCounts[pos])
	}
	return nil
}
