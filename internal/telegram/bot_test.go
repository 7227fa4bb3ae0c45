package telegram

import (
	"context"
	"errors"
	"html"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phq-companion/internal/interview"
	"phq-companion/internal/narrative"
	"phq-companion/internal/relay"
)

type sentMessage struct {
	text   string
	markup any
}

type fakeSender struct {
	sent     []sentMessage
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	mc := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, sentMessage{text: mc.Text, markup: mc.ReplyMarkup})
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last() sentMessage { return f.sent[len(f.sent)-1] }

type fakeGenerator struct {
	reply string
	err   error
}

func (g fakeGenerator) Generate(_ context.Context, req relay.Request) (relay.Result, error) {
	return relay.Result{Reply: g.reply, Phase: req.Phase}, g.err
}

func newTestBot(gen interview.Generator) (*Bot, *fakeSender) {
	fs := &fakeSender{}
	mgr := interview.NewManager(interview.Options{Generator: gen}, time.Hour)
	return newBot(fs, nil, mgr, nil), fs
}

func startCommand(chatID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}
}

func callback(chatID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}
}

func buttons(t *testing.T, m sentMessage) []string {
	t.Helper()
	kb, ok := m.markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "expected inline keyboard, got %T", m.markup)
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			out = append(out, *b.CallbackData)
		}
	}
	return out
}

func TestStartSendsConsentPrompt(t *testing.T) {
	b, fs := newTestBot(nil)
	b.handleIncomingMessage(context.Background(), startCommand(10))

	require.Len(t, fs.sent, 1)
	assert.Contains(t, fs.sent[0].text, "PHQ-9")
	assert.Equal(t, []string{consentCmd}, buttons(t, fs.sent[0]))
}

func TestConsentSendsIntroAndFirstQuestion(t *testing.T) {
	b, fs := newTestBot(nil)
	b.handleIncomingMessage(context.Background(), startCommand(10))
	b.handleCallback(context.Background(), callback(10, consentCmd))

	require.Len(t, fs.sent, 3)
	assert.Contains(t, fs.sent[1].text, "Over the last 2 weeks")
	assert.Nil(t, fs.sent[1].markup)
	assert.Equal(t, "Little interest or pleasure in doing things?", fs.sent[2].text)
	assert.Equal(t, []string{"answer:0", "answer:1", "answer:2", "answer:3"}, buttons(t, fs.sent[2]))
	assert.NotEmpty(t, fs.requests)
}

func TestFullInterviewShowsCautionWhenRelayFails(t *testing.T) {
	b, fs := newTestBot(fakeGenerator{err: errors.New("upstream down")})
	ctx := context.Background()
	b.handleIncomingMessage(ctx, startCommand(7))
	b.handleCallback(ctx, callback(7, consentCmd))
	for _, k := range []string{"3", "3", "3", "3", "3", "3", "3", "3", "0", "2"} {
		b.handleCallback(ctx, callback(7, answerPrefix+k))
	}

	n := len(fs.sent)
	require.GreaterOrEqual(t, n, 3)
	recap, fallback, caution := fs.sent[n-3], fs.sent[n-2], fs.sent[n-1]
	assert.Contains(t, recap.text, "Total score: 26 / 27")
	assert.Contains(t, recap.text, "Severity: Severe")
	assert.Equal(t, html.EscapeString(interview.SummaryFallback), fallback.text)
	assert.True(t, strings.HasPrefix(caution.text, cautionHeader))
	assert.Contains(t, caution.text, "988")
	assert.Equal(t, []string{restartCmd}, buttons(t, caution))

	// stale answer buttons are ignored after the interview ends
	b.handleCallback(ctx, callback(7, answerPrefix+"1"))
	assert.Len(t, fs.sent, n)
}

func TestFullInterviewWithoutSafetyHasNoCaution(t *testing.T) {
	b, fs := newTestBot(fakeGenerator{reply: "You seem steady. Keep doing what helps."})
	ctx := context.Background()
	b.handleIncomingMessage(ctx, startCommand(8))
	b.handleCallback(ctx, callback(8, consentCmd))
	for i := 0; i < 10; i++ {
		b.handleCallback(ctx, callback(8, answerPrefix+"0"))
	}

	last := fs.last()
	assert.Equal(t, "<b>You seem steady.</b> Keep doing what helps.", last.text)
	assert.Equal(t, []string{restartCmd}, buttons(t, last))
	for _, m := range fs.sent {
		assert.NotContains(t, m.text, cautionHeader)
	}
}

func TestRestartReplacesSession(t *testing.T) {
	b, fs := newTestBot(nil)
	ctx := context.Background()
	b.handleIncomingMessage(ctx, startCommand(5))
	first := b.chats[5].sessionID

	b.handleCallback(ctx, callback(5, restartCmd))
	assert.NotEqual(t, first, b.chats[5].sessionID)
	_, err := b.sessions.Get(first)
	assert.ErrorIs(t, err, interview.ErrNotFound)
	assert.Equal(t, []string{consentCmd}, buttons(t, fs.last()))
}

func TestPlainTextBeforeStartBeginsSession(t *testing.T) {
	b, fs := newTestBot(nil)
	b.handleIncomingMessage(context.Background(), &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}, Text: "hello"})
	require.Len(t, fs.sent, 1)
	assert.Equal(t, []string{consentCmd}, buttons(t, fs.sent[0]))

	b.handleIncomingMessage(context.Background(), &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}, Text: "hello again"})
	require.Len(t, fs.sent, 2)
	assert.Contains(t, fs.sent[1].text, "/start")
}

func TestRenderPartsEscapesAndBolds(t *testing.T) {
	out := renderParts([]narrative.Part{
		{Text: "Sleep < 5h most nights.", Bold: true},
		{Text: "Try a wind-down routine."},
		{Block: true},
		{Text: "Talk to a doctor & friends."},
	})
	assert.Equal(t, "<b>Sleep &lt; 5h most nights.</b> Try a wind-down routine.\n\nTalk to a doctor &amp; friends.", out)
}
