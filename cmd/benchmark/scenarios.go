package main

import (
	"fmt"

	"phq-companion/internal/questionnaire"
)

// scenario is a full set of answer keys in interview order.
type scenario struct {
	name string
	keys []string
}

var scenarios = []scenario{
	{name: "minimal", keys: []string{"0", "0", "1", "0", "0", "0", "0", "0", "0", "0"}},
	{name: "moderate", keys: []string{"2", "2", "2", "1", "1", "1", "1", "0", "0", "0"}},
	{name: "severe-safety", keys: []string{"3", "3", "3", "3", "3", "3", "3", "3", "0", "2"}},
}

func (s scenario) answers() (questionnaire.AnswerRecord, error) {
	qs := questionnaire.Questions()
	if len(s.keys) != len(qs) {
		return nil, fmt.Errorf("scenario %s has %d answers, want %d", s.name, len(s.keys), len(qs))
	}
	out := make(questionnaire.AnswerRecord, len(qs))
	for i, q := range qs {
		opt, err := questionnaire.OptionByKey(s.keys[i])
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.name, err)
		}
		out[q.ID] = questionnaire.Answer{Label: opt.Label, Score: opt.Score}
	}
	return out, nil
}
