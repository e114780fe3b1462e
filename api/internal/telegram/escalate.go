// Package telegram hands a CAPTCHA to a human operator when OCR gives up: the image is sent
// to an operator chat and the first text reply in that chat is taken as the answer.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"captcha-solver/api/internal/util"
)

// ErrNoReply is returned when the operator did not answer in time or skipped the image.
var ErrNoReply = errors.New("telegram: no operator reply")

const skipCommand = "/skip"

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

type Escalator struct {
	bot     botAPI
	chatID  int64
	timeout time.Duration
	log     logrus.FieldLogger

	// long polling timeout, сек
	pollTimeout int
	idleDelay   time.Duration

	mu     sync.Mutex
	offset int
	primed bool
}

type Option func(*Escalator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Escalator) { e.log = l }
}

func withPolling(pollTimeout int, idle time.Duration) Option {
	return func(e *Escalator) { e.pollTimeout, e.idleDelay = pollTimeout, idle }
}

// New builds an escalator on top of a bot API client (*tgbotapi.BotAPI).
func New(bot botAPI, chatID int64, timeout time.Duration, opts ...Option) *Escalator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	e := &Escalator{
		bot:         bot,
		chatID:      chatID,
		timeout:     timeout,
		log:         logrus.StandardLogger(),
		pollTimeout: 10,
		idleDelay:   200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromToken connects to the Bot API.
func NewFromToken(token string, chatID int64, timeout time.Duration, opts ...Option) (*Escalator, error) {
	if strings.TrimSpace(token) == "" || chatID == 0 {
		return nil, errors.New("telegram: token and chat id are required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = false
	return New(bot, chatID, timeout, opts...), nil
}

// Ask sends the image with caption and waits for a text reply in the operator chat.
// Only one question is in flight at a time.
func (e *Escalator) Ask(ctx context.Context, image []byte, caption string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// старые сообщения в чате не должны стать ответом
	if !e.primed {
		e.skipPending()
	}

	ext := util.ImageExt(util.SniffMimeHTTP(image))
	if ext == "" {
		ext = ".png"
	}
	photo := tgbotapi.NewPhoto(e.chatID, tgbotapi.FileBytes{Name: "captcha" + ext, Bytes: image})
	photo.Caption = caption + "\n" + skipCommand + " to skip"
	sent, err := e.bot.Send(photo)
	if err != nil {
		return "", fmt.Errorf("telegram: send photo: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return "", ErrNoReply
		}
		u := tgbotapi.NewUpdate(e.offset)
		u.Timeout = e.pollSeconds(ctx)
		updates, err := e.bot.GetUpdates(u)
		if err != nil {
			d := retryDelayFromError(err)
			e.log.WithError(err).WithField("retry_in", d).Warn("telegram: polling error")
			if !sleep(ctx, d) {
				return "", ErrNoReply
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= e.offset {
				e.offset = upd.UpdateID + 1
			}
			text, ok := e.replyText(upd, sent)
			if !ok {
				continue
			}
			if text == skipCommand {
				return "", ErrNoReply
			}
			e.log.WithField("reply", text).Info("telegram: operator answered")
			return text, nil
		}
		if len(updates) == 0 && !sleep(ctx, e.idleDelay) {
			return "", ErrNoReply
		}
	}
}

// pollSeconds caps the long-poll timeout by what is left of the reply window, so a
// blocking GetUpdates cannot outlive the deadline.
func (e *Escalator) pollSeconds(ctx context.Context) int {
	deadline, ok := ctx.Deadline()
	if !ok {
		return e.pollTimeout
	}
	left := int(time.Until(deadline) / time.Second)
	if left < 0 {
		left = 0
	}
	return min(e.pollTimeout, left)
}

func (e *Escalator) replyText(upd tgbotapi.Update, sent tgbotapi.Message) (string, bool) {
	m := upd.Message
	if m == nil || m.Chat == nil || m.Chat.ID != e.chatID {
		return "", false
	}
	if m.ReplyToMessage != nil && m.ReplyToMessage.MessageID != sent.MessageID {
		return "", false
	}
	text := strings.TrimSpace(m.Text)
	return text, text != ""
}

func (e *Escalator) skipPending() {
	u := tgbotapi.NewUpdate(-1)
	updates, err := e.bot.GetUpdates(u)
	if err != nil {
		e.log.WithError(err).Debug("telegram: skip pending updates")
		return
	}
	for _, upd := range updates {
		if upd.UpdateID >= e.offset {
			e.offset = upd.UpdateID + 1
		}
	}
	e.primed = true
}

// Notify sends a plain text message to the operator chat.
func (e *Escalator) Notify(text string) error {
	if _, err := e.bot.Send(tgbotapi.NewMessage(e.chatID, text)); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
