package specialist

import (
	"context"

	"github.com/antoniostano/minerva/internal/llm"
)

const (
	mathSystemPrompt = `You are a friendly math tutor helping students understand mathematical concepts.
Provide clear, step-by-step explanations. Show your work. Use simple language.
When showing calculations, be explicit about each step.
Keep responses concise but complete.`

	historySystemPrompt = `You are an engaging history tutor helping students understand historical events.
Explain causes and consequences, not just dates. Connect events to their context.
Use vivid but accurate descriptions. Keep responses concise but complete.`

	englishSystemPrompt = `You are a supportive English tutor helping students with grammar, writing and literature.
Explain rules with short examples. Encourage the student's own phrasing.
Keep responses concise but complete.`
)

const specialistMaxTokens = 1024

var _ Streamer = (*LLMSpecialist)(nil)

// LLMSpecialist streams answers from a chat model with a subject prompt.
type LLMSpecialist struct {
	client *llm.Client
	system string
}

func NewMathSpecialist(client *llm.Client) *LLMSpecialist {
	return &LLMSpecialist{client: client, system: mathSystemPrompt}
}

func NewHistorySpecialist(client *llm.Client) *LLMSpecialist {
	return &LLMSpecialist{client: client, system: historySystemPrompt}
}

func NewEnglishSpecialist(client *llm.Client) *LLMSpecialist {
	return &LLMSpecialist{client: client, system: englishSystemPrompt}
}

func (s *LLMSpecialist) Stream(ctx context.Context, question string) (<-chan string, <-chan error) {
	return s.client.StreamText(ctx, s.system, question, specialistMaxTokens)
}
