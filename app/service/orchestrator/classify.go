package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"voicedesk/app/client/llm"
	"voicedesk/app/service/history"

	_ "embed"

	"github.com/elliotchance/pie/v2"
)

//go:embed classify_prompt.txt
var classifyPromptTemplate string

// classify maps the refined query onto the fixed category set. Anything
// the model returns outside that set, and any transport failure, resolves
// to CategoryInquiry so downstream handlers never see an unknown label.
func (s *Service) classify(ctx context.Context, state State, in Input) State {
	content := fmt.Sprintf("Classify this query: %q", state.RefinedQuery)
	if len(in.History) > 0 {
		content += "\n\nRecent conversation history:\n" + history.Format(in.History)
	}

	reply, err := s.classifier.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: classifyPromptTemplate},
		{Role: llm.RoleUser, Content: content},
	}, llm.Options{Temperature: 0.3, MaxTokens: 256})
	if err != nil {
		state.Category = CategoryInquiry
		return state.withError("Classifier error: " + err.Error())
	}

	category := normalizeCategory(reply)
	if !pie.Contains(categories, category) {
		state.Category = CategoryInquiry
		return state.withError(fmt.Sprintf("Invalid category detected: %q, defaulting to inquiry", strings.TrimSpace(reply)))
	}

	state.Category = category

	return state
}

// normalizeCategory lowercases the label and folds the historical
// "enquiry" spelling into inquiry.
func normalizeCategory(raw string) Category {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.Trim(label, `"'.`)

	if label == "enquiry" {
		return CategoryInquiry
	}

	return Category(label)
}
