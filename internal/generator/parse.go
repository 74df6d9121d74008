package generator

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
)

// rawQuestion is the JSON shape requested from the model.
type rawQuestion struct {
	Question      string   `json:"question"`
	Type          string   `json:"type"`
	Options       []string `json:"options"`
	CorrectIndex  *int     `json:"correct_index"`
	CorrectAnswer string   `json:"correct_answer"`
	Keywords      []string `json:"keywords"`
	Explanation   string   `json:"explanation"`
	Difficulty    string   `json:"difficulty"`
	Topic         string   `json:"topic"`
}

var errNoQuestions = errors.New("no questions found in model response")

// ParseQuestions decodes a model response into question items. It tolerates
// markdown fences, preamble text and a {"questions": [...]} wrapper.
func ParseQuestions(rawText string) ([]models.QuestionItem, error) {
	rawText = strings.TrimSpace(rawText)
	rawText = strings.TrimPrefix(rawText, "```json")
	rawText = strings.TrimPrefix(rawText, "```")
	rawText = strings.TrimSuffix(rawText, "```")
	rawText = strings.TrimSpace(rawText)

	var raws []rawQuestion
	if err := json.Unmarshal([]byte(rawText), &raws); err != nil {
		var wrapped struct {
			Questions []rawQuestion `json:"questions"`
		}
		if err := json.Unmarshal([]byte(rawText), &wrapped); err == nil {
			raws = wrapped.Questions
		} else {
			// Try to extract JSON array
			start := strings.Index(rawText, "[")
			end := strings.LastIndex(rawText, "]")
			if start >= 0 && end > start {
				json.Unmarshal([]byte(rawText[start:end+1]), &raws)
			}
		}
	}

	items := make([]models.QuestionItem, 0, len(raws))
	for _, r := range raws {
		if item, ok := r.toItem(); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, errNoQuestions
	}
	return items, nil
}

func parseQuestionType(s string) (models.QuestionType, bool) {
	switch strings.ToLower(strings.NewReplacer("-", "_", " ", "_", "/", "_").Replace(strings.TrimSpace(s))) {
	case "multiple_choice", "mcq", "multiplechoice":
		return models.QuestionMultipleChoice, true
	case "true_false", "truefalse", "tf", "boolean":
		return models.QuestionTrueFalse, true
	case "short_answer", "short", "shortanswer", "open":
		return models.QuestionShortAnswer, true
	}
	return "", false
}

func (r rawQuestion) toItem() (models.QuestionItem, bool) {
	t, ok := parseQuestionType(r.Type)
	if !ok {
		return models.QuestionItem{}, false
	}
	tier, err := difficulty.Parse(r.Difficulty)
	if err != nil {
		tier = difficulty.Medium
	}
	item := models.QuestionItem{
		Type:        t,
		Prompt:      r.Question,
		Options:     r.Options,
		Keywords:    r.Keywords,
		Explanation: r.Explanation,
		Difficulty:  tier,
		Topic:       r.Topic,
		MatchRule:   models.MatchContains,
	}

	switch {
	case r.CorrectIndex != nil:
		item.CorrectIndex = *r.CorrectIndex
	case t == models.QuestionTrueFalse:
		if v, err := strconv.ParseBool(strings.TrimSpace(r.CorrectAnswer)); err == nil && !v {
			item.CorrectIndex = 1
		}
	case t == models.QuestionMultipleChoice:
		item.CorrectIndex = -1
		for i, opt := range r.Options {
			if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(r.CorrectAnswer)) {
				item.CorrectIndex = i
				break
			}
		}
	}
	if t == models.QuestionShortAnswer {
		item.CanonicalAnswer = r.CorrectAnswer
	}
	return item, true
}
