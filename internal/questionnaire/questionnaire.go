// Package questionnaire holds the fixed PHQ-9 interview items and the pure
// scoring that turns recorded answers into a total, a severity band and a
// safety flag.
package questionnaire

import (
	"errors"
	"fmt"
)

// Intro is shown before the first question.
const Intro = "Over the last 2 weeks, how often have you been bothered by the following problems?"

const (
	IDSafetyDead = "si_dead"
	IDSafetyHarm = "si_harm"
)

// Question is a single interview item. Order in Questions is the interview order.
type Question struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Safety reports whether the question probes self-harm or suicidal ideation.
func (q Question) Safety() bool {
	return q.ID == IDSafetyDead || q.ID == IDSafetyHarm
}

// AnswerOption is one of the four Likert responses shared by every question.
type AnswerOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Score int    `json:"score"`
}

var questions = []Question{
	{ID: "interest", Label: "Interest or pleasure", Text: "Little interest or pleasure in doing things?"},
	{ID: "mood", Label: "Mood", Text: "Feeling down, depressed, or hopeless?"},
	{ID: "sleep", Label: "Sleep", Text: "Trouble falling or staying asleep, or sleeping too much?"},
	{ID: "energy", Label: "Energy", Text: "Feeling tired or having little energy?"},
	{ID: "appetite", Label: "Appetite", Text: "Poor appetite or overeating?"},
	{ID: "self_worth", Label: "Self-worth", Text: "Feeling bad about yourself, or that you are a failure or have let yourself or your family down?"},
	{ID: "concentration", Label: "Concentration", Text: "Trouble concentrating on things, such as reading the newspaper or watching television?"},
	{ID: "psychomotor", Label: "Movement", Text: "Moving or speaking so slowly that other people could have noticed, or being so fidgety or restless that you have been moving around a lot more than usual?"},
	{ID: IDSafetyDead, Label: "Thoughts of death", Text: "Thoughts that you would be better off dead?"},
	{ID: IDSafetyHarm, Label: "Thoughts of self-harm", Text: "Thoughts of hurting yourself in some way?"},
}

var options = []AnswerOption{
	{Key: "0", Label: "Not at all", Score: 0},
	{Key: "1", Label: "Several days", Score: 1},
	{Key: "2", Label: "More than half the days", Score: 2},
	{Key: "3", Label: "Nearly every day", Score: 3},
}

// ErrUnknownOption is returned when an answer key does not name an AnswerOption.
var ErrUnknownOption = errors.New("unknown answer option")

// Questions returns a copy of the interview items in order.
func Questions() []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	return out
}

// Count is the number of interview items.
func Count() int { return len(questions) }

// QuestionAt returns the i-th interview item.
func QuestionAt(i int) (Question, bool) {
	if i < 0 || i >= len(questions) {
		return Question{}, false
	}
	return questions[i], true
}

// Options returns a copy of the four answer options.
func Options() []AnswerOption {
	out := make([]AnswerOption, len(options))
	copy(out, options)
	return out
}

// OptionByKey resolves an answer key ("0".."3").
func OptionByKey(key string) (AnswerOption, error) {
	for _, o := range options {
		if o.Key == key {
			return o, nil
		}
	}
	return AnswerOption{}, fmt.Errorf("%w: %q", ErrUnknownOption, key)
}

// OptionLabels returns the display labels of every option.
func OptionLabels() []string {
	out := make([]string, 0, len(options))
	for _, o := range options {
		out = append(out, o.Label)
	}
	return out
}
