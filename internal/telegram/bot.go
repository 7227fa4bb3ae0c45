// Package telegram runs the PHQ-9 interview as a Telegram chat with inline
// answer buttons.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"phq-companion/internal/interview"
)

const (
	consentCmd   = "consent"
	restartCmd   = "restart"
	answerPrefix = "answer:"
)

// chatState links a chat to its interview session and remembers how much of
// the transcript was already delivered.
type chatState struct {
	sessionID string
	sent      int
}

type Bot struct {
	api      *tgbotapi.BotAPI
	s        sender
	sessions *interview.Manager
	logger   *zap.Logger

	mu    sync.Mutex
	chats map[int64]*chatState
}

func New(botToken string, sessions *interview.Manager, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return newBot(botAPISender{api: api}, api, sessions, logger), nil
}

func newBot(s sender, api *tgbotapi.BotAPI, sessions *interview.Manager, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:      api,
		s:        s,
		sessions: sessions,
		logger:   logger,
		chats:    make(map[int64]*chatState),
	}
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, update.Message)
				continue
			}
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if msg.IsCommand() && msg.Command() == "start" {
		b.startSession(chatID)
		return
	}
	if _, ok := b.session(chatID); !ok {
		b.startSession(chatID)
		return
	}
	b.sendMessage(chatID, "Please use the buttons to answer, or send /start to begin again.", nil)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Debug("failed to answer callback", zap.Error(err))
	}

	if cb.Data == restartCmd {
		b.startSession(chatID)
		return
	}

	sess, ok := b.session(chatID)
	if !ok {
		b.sendMessage(chatID, "This check-in has expired. Send /start to begin a new one.", nil)
		return
	}

	var err error
	switch {
	case cb.Data == consentCmd:
		err = sess.Consent(ctx)
	case strings.HasPrefix(cb.Data, answerPrefix):
		if sess.Snapshot().Index == lastQuestionIndex() {
			b.sendTyping(chatID)
		}
		err = sess.Answer(ctx, strings.TrimPrefix(cb.Data, answerPrefix))
	default:
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, interview.ErrBusy):
		b.sendMessage(chatID, "One moment, I'm still putting your reflection together.", nil)
		return
	case errors.Is(err, interview.ErrFinished), errors.Is(err, interview.ErrWrongState):
		// stale button from an earlier message
		return
	default:
		b.logger.Warn("interview step failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	b.flush(chatID, sess)
}

func (b *Bot) startSession(chatID int64) {
	sess := b.sessions.Create()
	b.mu.Lock()
	if prev, ok := b.chats[chatID]; ok {
		b.sessions.Delete(prev.sessionID)
	}
	b.chats[chatID] = &chatState{sessionID: sess.ID()}
	b.mu.Unlock()

	b.logger.Info("interview started", zap.Int64("chat_id", chatID), zap.String("session_id", sess.ID()))
	b.flush(chatID, sess)
}

func (b *Bot) session(chatID int64) (*interview.Session, bool) {
	b.mu.Lock()
	st, ok := b.chats[chatID]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	sess, err := b.sessions.Get(st.sessionID)
	if err != nil {
		b.mu.Lock()
		delete(b.chats, chatID)
		b.mu.Unlock()
		return nil, false
	}
	return sess, true
}

// flush sends every assistant message not yet delivered. The keyboard for
// the session's next step goes on the last one.
func (b *Bot) flush(chatID int64, sess *interview.Session) {
	view := sess.Snapshot()

	b.mu.Lock()
	st, ok := b.chats[chatID]
	if !ok || st.sessionID != view.ID {
		b.mu.Unlock()
		return
	}
	from := st.sent
	st.sent = len(view.Transcript)
	b.mu.Unlock()

	var outgoing []interview.Message
	for _, m := range view.Transcript[from:] {
		if m.Role == "assistant" {
			outgoing = append(outgoing, m)
		}
	}
	for i, m := range outgoing {
		var kb *tgbotapi.InlineKeyboardMarkup
		if i == len(outgoing)-1 {
			kb = keyboardFor(view.State)
		}
		b.sendMessage(chatID, renderMessage(m), kb)
	}
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("failed to send chat action", zap.Error(err))
	}
}

func (b *Bot) sendMessage(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
