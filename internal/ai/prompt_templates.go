package ai

import (
	"fmt"
	"strings"
)

// Action selects the transformation GenerateStoryEnhancement applies.
type Action string

const (
	ActionPolish    Action = "POLISH"
	ActionExpand    Action = "EXPAND"
	ActionSummarize Action = "SUMMARIZE"
	ActionTitle     Action = "TITLE"
	ActionInsights  Action = "INSIGHTS"
)

// Valid reports whether a is one of the supported actions.
func (a Action) Valid() bool {
	_, ok := PromptTemplates.Actions[a]
	return ok
}

// PromptTemplates contains the prompt templates for each kind of request.
// Every template takes the user's text as its single argument.
var PromptTemplates = struct {
	Actions  map[Action]string
	Tags     string
	Research string
}{
	Actions: map[Action]string{
		ActionPolish: `You are a professional editor. Rewrite the following text to correct grammar, improve flow, and enhance vocabulary while maintaining the original tone. Return ONLY the enhanced text.

Text: %s`,
		ActionExpand: `You are a creative writing assistant. Expand the following text by adding descriptive details and sensory depth. Keep the narrative consistent. Return ONLY the expanded text.

Text: %s`,
		ActionSummarize: `Summarize the following story into a concise, engaging paragraph suitable for a preview. Return ONLY the summary.

Text: %s`,
		ActionTitle: `Generate a catchy, evocative title for the following story. Return ONLY the title, no quotes.

Story: %s`,
		ActionInsights: `Analyze the following story and provide 3-4 deep, philosophical, or emotional insights about the themes presented. Format them as a concise paragraph or bullet points. Return ONLY the insights.

Story: %s`,
	},
	Tags: `Suggest 3 to 5 relevant tags for the following story. Return them as a comma-separated list (e.g., "Love, Travel, Mystery"). Return ONLY the list.

Story: %s`,
	Research: `Provide a comprehensive factual summary and real-world context about: "%s". Include key facts, dates, and interesting details to help understand the topic better.`,
}

// BuildActionPrompt wraps text in the instruction for action.
func BuildActionPrompt(action Action, text string) (string, error) {
	tmpl, ok := PromptTemplates.Actions[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return fmt.Sprintf(tmpl, text), nil
}

// BuildTagsPrompt asks for a comma-separated tag list.
func BuildTagsPrompt(text string) string {
	return fmt.Sprintf(PromptTemplates.Tags, text)
}

// BuildResearchPrompt asks for grounded context about query.
func BuildResearchPrompt(query string) string {
	return fmt.Sprintf(PromptTemplates.Research, escapeForPrompt(query))
}

// escapeForPrompt keeps a single-line value from breaking out of its quotes.
func escapeForPrompt(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.TrimSpace(s)
}
