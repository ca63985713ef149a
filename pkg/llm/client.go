// Package llm provides the clients of the external answer service that
// handles questions too vague to become a database filter.
package llm

import (
	"context"
	"strings"
)

// AnswerClient asks an external service to answer a question.
// Every failure is returned as an *Error.
type AnswerClient interface {
	RequestAnswer(ctx context.Context, question, promptContext string) (string, error)
}

// composePrompt prefixes the question with caller-supplied context.
func composePrompt(question, promptContext string) string {
	prompt := strings.TrimSpace(question)
	if promptContext = strings.TrimSpace(promptContext); promptContext != "" {
		prompt = promptContext + "\n\n질문: " + prompt
	}
	return prompt
}

// systemPrompt frames chat-model providers as a downtime assistant.
const systemPrompt = "당신은 반도체 공장 설비 다운타임 이력에 대해 답변하는 어시스턴트입니다. " +
	"질문이 모호하면 사이트, 공장, 공정, 장비, 기간 등 필요한 조건을 안내하세요."
