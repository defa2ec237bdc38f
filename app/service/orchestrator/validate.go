package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voicedesk/app/client/llm"

	_ "embed"
)

//go:embed validate_prompt.txt
var validatePromptTemplate string

type validationResult struct {
	IsValid  bool   `json:"isValid"`
	Feedback string `json:"feedback"`
}

// validate asks the model whether the response answers the original
// query. The policy is fail-open: a transport failure resolves to valid
// so a dead validator can never block the conversation.
func (s *Service) validate(ctx context.Context, state State) State {
	raw, err := s.validator.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: validatePromptTemplate},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Original Query: %q\n\nResponse: %q\n\nPlease validate this response.",
			state.OriginalQuery, state.Response)},
	}, llm.Options{Temperature: 0.3, MaxTokens: 512})
	if err != nil {
		state.IsValid = true
		state.ValidationFeedback = ""
		return state.withError("Validator error: " + err.Error())
	}

	result, err := parseValidation(raw)
	if err != nil {
		state = state.withError("Validation parse error: " + err.Error())
	}

	state.IsValid = result.IsValid
	state.ValidationFeedback = result.Feedback

	return state
}

// parseValidation expects {"isValid": ..., "feedback": ...}. When the
// model output is not JSON it falls back to a textual heuristic on the
// word "invalid"; the returned error marks that the fallback was used.
func parseValidation(raw string) (validationResult, error) {
	trimmed := trimModelJSON(raw)

	var result validationResult
	if err := json.Unmarshal([]byte(trimmed), &result); err == nil {
		return result, nil
	}

	lower := strings.ToLower(trimmed)
	isValid := strings.Contains(lower, "valid") &&
		!strings.Contains(lower, "not valid") &&
		!strings.Contains(lower, "invalid")

	result = validationResult{IsValid: isValid}
	if !isValid {
		result.Feedback = "The response does not adequately address the query."
	}

	return result, fmt.Errorf("non-JSON validator output %q", truncate(trimmed, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
