package telegram

import (
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"phq-companion/internal/interview"
	"phq-companion/internal/narrative"
	"phq-companion/internal/questionnaire"
)

const cautionHeader = "⚠️ <b>Support is available</b>"

// renderMessage converts a transcript message to Telegram HTML.
func renderMessage(m interview.Message) string {
	switch m.Kind {
	case interview.KindParts:
		return renderParts(m.Parts)
	case interview.KindCaution:
		return cautionHeader + "\n\n" + renderParts(m.Parts)
	default:
		return html.EscapeString(m.Content)
	}
}

// renderParts mirrors narrative.JoinParts with bold parts wrapped in <b>.
func renderParts(parts []narrative.Part) string {
	var b strings.Builder
	inline := false
	for _, p := range parts {
		text := html.EscapeString(p.Text)
		if p.Bold && text != "" {
			text = "<b>" + text + "</b>"
		}
		if !p.Block {
			if inline {
				b.WriteByte(' ')
			}
			b.WriteString(text)
			inline = true
			continue
		}
		if inline {
			b.WriteByte('\n')
		}
		b.WriteString(text)
		b.WriteByte('\n')
		inline = false
	}
	return strings.TrimSpace(b.String())
}

func keyboardFor(state interview.State) *tgbotapi.InlineKeyboardMarkup {
	var kb tgbotapi.InlineKeyboardMarkup
	switch state {
	case interview.StateAwaitingConsent:
		kb = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Begin", consentCmd)),
		)
	case interview.StateAskingQuestion:
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, o := range questionnaire.Options() {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(o.Label, answerPrefix+o.Key),
			))
		}
		kb = tgbotapi.NewInlineKeyboardMarkup(rows...)
	case interview.StateFinished:
		kb = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Start again", restartCmd)),
		)
	default:
		return nil
	}
	return &kb
}

func lastQuestionIndex() int { return questionnaire.Count() - 1 }
