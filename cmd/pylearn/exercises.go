package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pylearn/internal/exercise"
	"github.com/michaelbrown/pylearn/internal/logging"
)

var exercisesCmd = &cobra.Command{
	Use:     "exercises",
	Aliases: []string{"exercise", "ex"},
	Short:   "Browse exercise content",
}

var exercisesChaptersCmd = &cobra.Command{
	Use:   "chapters",
	Short: "List chapters and their topics",
	RunE:  runExercisesChapters,
}

var exercisesTopicCmd = &cobra.Command{
	Use:   "topic <topic-id>",
	Short: "List the exercises of a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := cliResolver()
		if err != nil {
			return err
		}
		printExercises(r.ForTopic(args[0]))
		return nil
	},
}

var exercisesChapterCmd = &cobra.Command{
	Use:   "chapter <chapter-id>",
	Short: "List the exercises of a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := cliResolver()
		if err != nil {
			return err
		}
		printExercises(r.ForChapter(args[0]))
		return nil
	},
}

var exercisesShowCmd = &cobra.Command{
	Use:   "show <exercise-id>",
	Short: "Print one exercise as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := cliResolver()
		if err != nil {
			return err
		}
		ex, err := r.ByID(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ex)
	},
}

func init() {
	rootCmd.AddCommand(exercisesCmd)
	exercisesCmd.AddCommand(exercisesChaptersCmd, exercisesTopicCmd, exercisesChapterCmd, exercisesShowCmd)
}

func cliResolver() (*exercise.Resolver, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newResolver(cfg, logging.Nop())
}

func runExercisesChapters(cmd *cobra.Command, args []string) error {
	r, err := cliResolver()
	if err != nil {
		return err
	}

	for _, ch := range r.Chapters() {
		fmt.Printf("\033[1m%s\033[0m  \033[90m%s\033[0m\n", ch.Title, ch.ID)
		for _, t := range ch.Topics {
			fmt.Printf("  %-30s %s\n", t.ID, t.Title)
		}
		fmt.Println()
	}
	return nil
}

func printExercises(exs []exercise.Exercise) {
	if len(exs) == 0 {
		fmt.Println("No exercises found.")
		return
	}

	fmt.Printf("%-24s %-12s %s\n", "ID", "DIFFICULTY", "TITLE")
	fmt.Println(strings.Repeat("─", 70))
	for _, ex := range exs {
		fmt.Printf("%-24s %-12s %s\n", ex.ID(), ex.Difficulty(), truncate(ex.Title(), 40))
	}
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
