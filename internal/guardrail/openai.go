package guardrail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

var _ Moderator = (*OpenAIModerator)(nil)

// OpenAIModerator checks text against the OpenAI moderation endpoint.
type OpenAIModerator struct {
	client oai.Client
}

func NewOpenAIModerator(apiKey string, timeout time.Duration) (*OpenAIModerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("guardrail: openai moderation apiKey must not be empty")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := oai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	return &OpenAIModerator{client: client}, nil
}

// Moderate implements Moderator. Confidence is the highest category score
// when flagged, zero otherwise.
func (m *OpenAIModerator) Moderate(ctx context.Context, text string) (Result, error) {
	resp, err := m.client.Moderations.New(ctx, oai.ModerationNewParams{
		Input: oai.ModerationNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("guardrail: moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return Result{}, fmt.Errorf("guardrail: empty moderation response")
	}

	mod := resp.Results[0]
	res := Result{
		Flagged:    mod.Flagged,
		Original:   text,
		Categories: flaggedCategories(mod.Categories),
	}
	if mod.Flagged {
		res.Confidence = maxScore(mod.CategoryScores)
	}
	return res, nil
}

func flaggedCategories(c oai.ModerationCategories) []string {
	var out []string
	for _, entry := range []struct {
		name    string
		flagged bool
	}{
		{"harassment", c.Harassment},
		{"harassment/threatening", c.HarassmentThreatening},
		{"hate", c.Hate},
		{"hate/threatening", c.HateThreatening},
		{"illicit", c.Illicit},
		{"illicit/violent", c.IllicitViolent},
		{"self-harm", c.SelfHarm},
		{"self-harm/instructions", c.SelfHarmInstructions},
		{"self-harm/intent", c.SelfHarmIntent},
		{"sexual", c.Sexual},
		{"sexual/minors", c.SexualMinors},
		{"violence", c.Violence},
		{"violence/graphic", c.ViolenceGraphic},
	} {
		if entry.flagged {
			out = append(out, entry.name)
		}
	}
	return out
}

func maxScore(s oai.ModerationCategoryScores) float64 {
	max := 0.0
	for _, v := range []float64{
		s.Harassment, s.HarassmentThreatening,
		s.Hate, s.HateThreatening,
		s.Illicit, s.IllicitViolent,
		s.SelfHarm, s.SelfHarmInstructions, s.SelfHarmIntent,
		s.Sexual, s.SexualMinors,
		s.Violence, s.ViolenceGraphic,
	} {
		if v > max {
			max = v
		}
	}
	return max
}
