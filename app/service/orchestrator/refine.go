package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"voicedesk/app/client/llm"

	_ "embed"
)

//go:embed refine_prompt.txt
var refinePromptTemplate string

// LLM refinement is skipped for transcripts this short; the cheap cleanup
// is enough and the extra call is not worth a round trip.
const shortQueryLimit = 20

var (
	fillerWordsRe = regexp.MustCompile(`(?i)\b(?:um|uh|you know)\s+`)
	hesitationsRe = regexp.MustCompile(`\s+(?:-|\.\.\.)\s+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// cleanTranscript applies the cheap rule-based pass that runs before any
// model call: filler words, hesitation dashes, whitespace.
func cleanTranscript(text string) string {
	refined := fillerWordsRe.ReplaceAllString(text, "")
	refined = hesitationsRe.ReplaceAllString(refined, " ")
	refined = whitespaceRe.ReplaceAllString(refined, " ")

	return strings.TrimSpace(refined)
}

// refine normalizes the raw transcript. On any model failure the cleaned
// original text is kept and the run continues.
func (s *Service) refine(ctx context.Context, state State) State {
	cleaned := cleanTranscript(state.OriginalQuery)
	state.RefinedQuery = cleaned

	if len(cleaned) <= shortQueryLimit {
		return state
	}

	reply, err := s.refiner.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: refinePromptTemplate},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Refine this query: %q", cleaned)},
	}, llm.Options{Temperature: 0.3, MaxTokens: 512})
	if err != nil {
		return state.withError("Refiner error: " + err.Error())
	}

	reply = strings.TrimSpace(reply)
	reply = strings.Trim(reply, `"'`)

	if len(reply) > 0 {
		state.RefinedQuery = reply
	}

	return state
}
