package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportMarkdown renders the feedback history of an exercise as a markdown document.
func ExportMarkdown(exerciseID string, records []FeedbackRecord) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Feedback for %s\n\n", exerciseID))
	b.WriteString(fmt.Sprintf("- **Exercise:** %s\n", exerciseID))
	b.WriteString(fmt.Sprintf("- **Submissions:** %d\n", len(records)))
	b.WriteString("\n---\n\n")

	for _, r := range records {
		f := r.Feedback
		b.WriteString(fmt.Sprintf("## Submission %d (%s)\n\n", r.ID, r.Timestamp.Format("2006-01-02 15:04:05")))
		b.WriteString(fmt.Sprintf("**Correctness:** %s\n\n", f.Correctness))
		b.WriteString(fmt.Sprintf("```python\n%s\n```\n\n", strings.TrimRight(r.Code, "\n")))
		if f.OverallFeedback != "" {
			b.WriteString(fmt.Sprintf("%s\n\n", f.OverallFeedback))
		}
		if f.DetailedFeedback != "" {
			b.WriteString(fmt.Sprintf("<details>\n<summary>Details</summary>\n\n%s\n</details>\n\n", f.DetailedFeedback))
		}
		if len(f.Mistakes) > 0 {
			b.WriteString("### Mistakes\n\n")
			for _, m := range f.Mistakes {
				b.WriteString(fmt.Sprintf("- %s", m.Description))
				if m.Suggestion != "" {
					b.WriteString(fmt.Sprintf(" _Fix:_ %s", m.Suggestion))
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		for i, alt := range f.AlternativeSolutions {
			b.WriteString(fmt.Sprintf("**Alternative %d:**\n\n%s\n\n", i+1, alt))
		}
	}

	return b.String()
}

// ExportJSON renders the feedback history of an exercise as formatted JSON.
func ExportJSON(exerciseID string, records []FeedbackRecord) ([]byte, error) {
	if records == nil {
		records = []FeedbackRecord{}
	}
	export := struct {
		ExerciseID      string           `json:"exercise_id"`
		FeedbackHistory []FeedbackRecord `json:"feedback_history"`
	}{
		ExerciseID:      exerciseID,
		FeedbackHistory: records,
	}
	return json.MarshalIndent(export, "", "  ")
}
