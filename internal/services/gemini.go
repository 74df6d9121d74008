package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"patashala-backend/internal/feedback"
	"patashala-backend/internal/generator"
	"patashala-backend/internal/models"
)

const scoreTimeout = 15 * time.Second

// GeminiService authors questions for the generator, scores short answers
// for the evaluator and writes personalized feedback.
type GeminiService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	scorer   *genai.GenerativeModel
	writer   *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
	limiter  *rate.Limiter
}

func NewGeminiService(apiKey, modelName string, requestsPerMin, concurrentReqs int) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	scorer := client.GenerativeModel(modelName)
	scorer.SetTemperature(0)
	scorer.ResponseMIMEType = "application/json"

	writer := client.GenerativeModel(modelName)
	writer.SetTemperature(0.4)
	writer.ResponseMIMEType = "application/json"
	writer.SystemInstruction = genai.NewUserContent(genai.Text("You are an expert educational tutor who provides personalized, constructive feedback."))

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	limit := rate.Inf
	if requestsPerMin > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMin))
	}

	return &GeminiService{
		client:   client,
		model:    model,
		scorer:   scorer,
		writer:   writer,
		rateChan: rateChan,
		limiter:  rate.NewLimiter(limit, concurrentReqs),
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		s.releaseRate()
		return err
	}
	return nil
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *GeminiService) generate(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	for _, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("WARNING: Gemini stopped due to %s", cand.FinishReason)
		}
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("Gemini returned empty text")
	}
	return text, nil
}

// GenerateQuestions implements generator.Source.
func (s *GeminiService) GenerateQuestions(ctx context.Context, req generator.Request) ([]models.QuestionItem, error) {
	raw, err := s.generate(ctx, s.model, buildQuestionPrompt(req))
	if err != nil {
		return nil, err
	}
	return generator.ParseQuestions(raw)
}

// ScoreShortAnswer implements evaluator.Scorer.
func (s *GeminiService) ScoreShortAnswer(ctx context.Context, q models.QuestionItem, answer string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, scoreTimeout)
	defer cancel()

	raw, err := s.generate(ctx, s.scorer, buildScorePrompt(q, answer))
	if err != nil {
		return 0, err
	}
	return parseScore(raw)
}

func parseScore(raw string) (float64, error) {
	var out struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(trimFences(raw)), &out); err != nil {
		return 0, fmt.Errorf("unparseable score response: %w", err)
	}
	if out.Score == nil || *out.Score < 0 || *out.Score > 1 {
		return 0, fmt.Errorf("score missing or out of range")
	}
	return *out.Score, nil
}

// WriteFeedback implements feedback.Writer.
func (s *GeminiService) WriteFeedback(ctx context.Context, req feedback.Request) (*feedback.Personalized, error) {
	raw, err := s.generate(ctx, s.writer, buildFeedbackPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseFeedback(raw)
}

func trimFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func parseFeedback(raw string) (*feedback.Personalized, error) {
	var out feedback.Personalized
	if err := json.Unmarshal([]byte(trimFences(raw)), &out); err != nil {
		return nil, fmt.Errorf("unparseable feedback response: %w", err)
	}
	if strings.TrimSpace(out.Message) == "" || len(out.ImprovementAreas) == 0 {
		return nil, fmt.Errorf("feedback response missing personalMessage or improvementAreas")
	}
	return &out, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

func buildQuestionPrompt(req generator.Request) string {
	var b strings.Builder

	b.WriteString("You are an expert educational assessor. Generate quiz questions based on the following content.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")

	if req.Subject != "" {
		b.WriteString(fmt.Sprintf("Subject: %s\n", req.Subject))
	}
	b.WriteString(fmt.Sprintf("Generate exactly %d multiple_choice, %d true_false and %d short_answer questions.\n",
		req.Mix.MultipleChoice, req.Mix.TrueFalse, req.Mix.ShortAnswer))
	b.WriteString(fmt.Sprintf("Baseline difficulty: %s. Spread questions across easy, medium and hard.\n", req.Baseline))
	b.WriteString("Easy = direct recall from text. Medium = application of concepts. Hard = analysis or inference beyond what is explicitly stated.\n")

	b.WriteString(`
JSON schema per question:
{"question": "string", "type": "multiple_choice"|"true_false"|"short_answer", "options": ["string"], "correct_index": int, "correct_answer": "string", "keywords": ["string"], "explanation": "string", "difficulty": "easy"|"medium"|"hard", "topic": "string"}

For multiple_choice: exactly 4 options and correct_index. For true_false: options ["True", "False"] and correct_index.
For short_answer: no options; correct_answer is a short phrase and keywords lists the terms a correct answer must mention.
Every question needs an explanation that teaches the concept.
`)

	b.WriteString("\n---CONTENT---\n")
	b.WriteString(req.Text)
	b.WriteString("\n---END---\n")

	return b.String()
}

func buildScorePrompt(q models.QuestionItem, answer string) string {
	var b strings.Builder
	b.WriteString("You grade short answers. Return ONLY a JSON object {\"score\": number} where score is between 0 and 1.\n")
	b.WriteString("1 means fully correct, 0.5 means partially correct, 0 means incorrect. Ignore spelling and grammar.\n\n")
	b.WriteString(fmt.Sprintf("Question: %s\n", q.Prompt))
	b.WriteString(fmt.Sprintf("Expected answer: %s\n", q.CanonicalAnswer))
	if len(q.Keywords) > 0 {
		b.WriteString(fmt.Sprintf("Key terms: %s\n", strings.Join(q.Keywords, ", ")))
	}
	b.WriteString(fmt.Sprintf("Student answer: %s\n", answer))
	return b.String()
}

func buildFeedbackPrompt(req feedback.Request) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("A student took a quiz on %s and scored %.1f%%. Their current difficulty level is %s.\n\n", req.Subject, req.Score*100, req.Tier))
	b.WriteString("These are the questions they answered incorrectly:\n")
	for i, m := range req.Misconceptions {
		b.WriteString(fmt.Sprintf("\nQuestion %d: %s\n", i+1, m.Question))
		b.WriteString(fmt.Sprintf("Student's answer: %s\n", m.StudentAnswer))
		b.WriteString(fmt.Sprintf("Correct answer: %s\n", m.CorrectAnswer))
		b.WriteString(fmt.Sprintf("Explanation: %s\n", m.Explanation))
	}
	b.WriteString(`
Based on these misconceptions, provide:
1. A personalized, encouraging message (1-2 sentences)
2. 2-3 specific improvement areas
3. 2-3 recommended learning resources or activities
4. 3-5 specific concept areas to study next

Return ONLY a JSON object with these keys:
{"personalMessage": "string", "improvementAreas": ["string"], "recommendedResources": ["string"], "suggestedConcepts": ["string"]}
`)
	return b.String()
}
