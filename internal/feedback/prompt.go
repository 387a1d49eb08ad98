package feedback

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are an AI Python tutor providing feedback on code exercises. Evaluate the submitted code against the provided requirements and expected output.

Your evaluation should include:
1. Correctness assessment (Is the code correct? Does it solve the problem?)
2. Code quality feedback (Is the code well-written, efficient, and following Python best practices?)
3. Alternative solutions, if applicable (What are other ways to solve this problem?)
4. Explanations of mistakes, if applicable

Format your response as a JSON object with the following structure:
{
    "correctness": "CORRECT" or "INCORRECT",
    "overall_feedback": "Overall assessment of the code",
    "detailed_feedback": "Detailed evaluation of the code",
    "alternative_solutions": ["Alternative solution 1", "Alternative solution 2"],
    "mistakes": [{
        "description": "Description of mistake",
        "suggestion": "How to fix it"
    }]
}`

// Submission is a learner's answer to an exercise.
type Submission struct {
	ExerciseID     string         `json:"exercise_id"`
	Code           string         `json:"code"`
	ExpectedOutput string         `json:"expected_output,omitempty"`
	Question       string         `json:"question,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func userPrompt(s Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exercise ID: %s\n\n", s.ExerciseID)
	if s.Question != "" {
		fmt.Fprintf(&b, "Question/Prompt: %s\n\n", s.Question)
	}
	if s.ExpectedOutput != "" {
		fmt.Fprintf(&b, "Expected Output: %s\n\n", s.ExpectedOutput)
	}
	if len(s.Metadata) > 0 {
		if meta, err := json.Marshal(s.Metadata); err == nil {
			fmt.Fprintf(&b, "Additional Information: %s\n\n", meta)
		}
	}
	fmt.Fprintf(&b, "User's Code:\n```python\n%s\n```\n\n", s.Code)
	b.WriteString("Please evaluate this code and provide feedback.")
	return b.String()
}
