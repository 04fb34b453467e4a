package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wordmine/wordmine/internal/distractor"
	"github.com/wordmine/wordmine/internal/survey"
	"github.com/wordmine/wordmine/internal/survey/sessionstore"
	"github.com/wordmine/wordmine/internal/vocab"
)

func newSurveyCmd() *cobra.Command {
	surveyCmd := &cobra.Command{
		Use:   "survey",
		Short: "Survey engine utilities",
	}

	var (
		file      string
		seed      int64
		knowledge int
	)
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one adaptive survey session with a scripted respondent",
		Long: `Run a full survey against the loaded snapshot without a database. The
respondent knows every word ranked at or below --knowledge and picks the
unknown option otherwise, so a fixed --seed reproduces the exact session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSurveySimulate(cmd.Context(), file, seed, knowledge)
		},
	}
	simulateCmd.Flags().StringVar(&file, "file", "data/vocab_snapshot.json", "snapshot file")
	simulateCmd.Flags().Int64Var(&seed, "seed", 1, "PRNG seed")
	simulateCmd.Flags().IntVar(&knowledge, "knowledge", 4000, "respondent vocabulary size (rank)")

	surveyCmd.AddCommand(simulateCmd)
	return surveyCmd
}

func runSurveySimulate(ctx context.Context, file string, seed int64, knowledge int) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read snapshot file %s: %w", file, err)
	}
	store, err := vocab.Load(data)
	if err != nil {
		return err
	}

	decks := distractor.NewEngine(store, distractor.DefaultConfig())
	engine := survey.NewEngine(store, decks, survey.DefaultConfig())
	svc := survey.NewService(engine, sessionstore.NewMemory(0))

	step := seed
	svc.Seed(func() int64 { step++; return step })

	fmt.Printf("Simulating survey: seed=%d knowledge=%d\n\n", seed, knowledge)

	in := &survey.StepInput{}
	for number := 1; ; number++ {
		result, err := svc.ProcessStep(ctx, in)
		if err != nil {
			return err
		}

		if result.Status == survey.StatusComplete {
			fmt.Printf("\nCompleted after %d questions\n", len(result.History))
			fmt.Printf("  Volume:  %d\n", result.Metrics.Volume)
			fmt.Printf("  Reach:   %d\n", result.Metrics.Reach)
			fmt.Printf("  Density: %.2f\n", result.Metrics.Density)
			fmt.Printf("\n%s\n", result.Methodology)
			return nil
		}

		q := result.Payload
		answer := respond(q, knowledge)
		knows := !strings.Contains(answer.SelectedOptionIDs[0], "unknown")
		fmt.Printf("  q%-3d rank %-5d %-18s %s\n", number, q.Rank, q.Word, verdict(knows))

		in = &survey.StepInput{
			SessionID:     result.SessionID,
			PriorAnswer:   answer,
			PriorQuestion: q,
		}
	}
}

// respond plays the scripted respondent: pick the first target option when
// the word is within the knowledge horizon, otherwise admit not knowing.
func respond(q *survey.Question, knowledge int) *survey.Answer {
	answer := &survey.Answer{QuestionID: q.QuestionID, TimeTaken: 4}
	if q.Rank <= knowledge {
		for _, opt := range q.Options {
			if strings.HasPrefix(opt.ID, "target_") {
				answer.SelectedOptionIDs = []string{opt.ID}
				return answer
			}
		}
	}
	answer.SelectedOptionIDs = []string{"unknown_option"}
	return answer
}

func verdict(knows bool) string {
	if knows {
		return "known"
	}
	return "unknown"
}
