package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus/hooks/test"
)

const operatorChat = int64(-1001)

// fakeBot serves queued update batches; every GetUpdates call pops one batch.
type fakeBot struct {
	sent    []tgbotapi.Chattable
	pending []tgbotapi.Update
	batches [][]tgbotapi.Update
	offsets  []int
	timeouts []int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 100 + len(f.sent)}, nil
}

func (f *fakeBot) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.offsets = append(f.offsets, cfg.Offset)
	f.timeouts = append(f.timeouts, cfg.Timeout)
	if cfg.Offset == -1 {
		return f.pending, nil
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func textUpdate(id int, chat int64, text string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: id, Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chat},
		Text: text,
	}}
}

func newEscalator(bot *fakeBot, timeout time.Duration) *Escalator {
	logger, _ := test.NewNullLogger()
	return New(bot, operatorChat, timeout, WithLogger(logger), withPolling(0, time.Millisecond))
}

func TestAskTakesFirstReplyFromOperatorChat(t *testing.T) {
	bot := &fakeBot{
		pending: []tgbotapi.Update{textUpdate(7, operatorChat, "stale")},
		batches: [][]tgbotapi.Update{
			{textUpdate(8, 42, "wrong chat"), {UpdateID: 9}},
			{textUpdate(10, operatorChat, "  XK2M9 ")},
		},
	}
	e := newEscalator(bot, time.Second)
	got, err := e.Ask(context.Background(), []byte("png"), "attempt 1")
	if err != nil || got != "XK2M9" {
		t.Fatalf("got %q, %v", got, err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected one photo, got %d", len(bot.sent))
	}
	photo, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	if !ok || photo.ChatID != operatorChat || !strings.Contains(photo.Caption, "attempt 1") {
		t.Fatalf("unexpected photo: %#v", bot.sent[0])
	}
	if bot.offsets[0] != -1 || bot.offsets[1] != 8 {
		t.Fatalf("stale updates should be skipped, offsets %v", bot.offsets)
	}
}

func TestAskIgnoresRepliesToOtherMessages(t *testing.T) {
	other := textUpdate(1, operatorChat, "OLD1")
	other.Message.ReplyToMessage = &tgbotapi.Message{MessageID: 5}
	bot := &fakeBot{batches: [][]tgbotapi.Update{{other, textUpdate(2, operatorChat, "NEW2")}}}
	got, err := newEscalator(bot, time.Second).Ask(context.Background(), []byte("png"), "c")
	if err != nil || got != "NEW2" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestAskSkip(t *testing.T) {
	bot := &fakeBot{batches: [][]tgbotapi.Update{{textUpdate(1, operatorChat, "/skip")}}}
	if _, err := newEscalator(bot, time.Second).Ask(context.Background(), []byte("png"), "c"); !errors.Is(err, ErrNoReply) {
		t.Fatalf("expected ErrNoReply, got %v", err)
	}
}

func TestAskTimeout(t *testing.T) {
	bot := &fakeBot{}
	start := time.Now()
	_, err := newEscalator(bot, 50*time.Millisecond).Ask(context.Background(), []byte("png"), "c")
	if !errors.Is(err, ErrNoReply) {
		t.Fatalf("expected ErrNoReply, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not honoured")
	}
}

func TestAskPollTimeoutBoundedByReplyWindow(t *testing.T) {
	bot := &fakeBot{}
	logger, _ := test.NewNullLogger()
	e := New(bot, operatorChat, 1500*time.Millisecond, WithLogger(logger), withPolling(10, 100*time.Millisecond))
	if _, err := e.Ask(context.Background(), []byte("png"), "c"); !errors.Is(err, ErrNoReply) {
		t.Fatalf("expected ErrNoReply, got %v", err)
	}
	var polls int
	for i, off := range bot.offsets {
		if off == -1 {
			continue
		}
		polls++
		if bot.timeouts[i] > 1 {
			t.Fatalf("long poll of %ds exceeds the 1.5s reply window", bot.timeouts[i])
		}
	}
	if polls == 0 {
		t.Fatalf("no polls made")
	}
}

func TestPollSecondsWithoutDeadline(t *testing.T) {
	e := New(&fakeBot{}, operatorChat, time.Second, withPolling(10, time.Millisecond))
	if got := e.pollSeconds(context.Background()); got != 10 {
		t.Fatalf("got %d", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	if got := e.pollSeconds(ctx); got != 0 {
		t.Fatalf("expired deadline: got %d", got)
	}
}

func TestNotify(t *testing.T) {
	bot := &fakeBot{}
	if err := newEscalator(bot, time.Second).Notify("retries exhausted"); err != nil {
		t.Fatal(err)
	}
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok || msg.Text != "retries exhausted" || msg.ChatID != operatorChat {
		t.Fatalf("unexpected message %#v", bot.sent[0])
	}
}

func TestRetryDelayFromError(t *testing.T) {
	cases := []struct {
		err  error
		want time.Duration
	}{
		{errors.New("Too Many Requests: retry after 7"), 7 * time.Second},
		{errors.New("too many requests"), 3 * time.Second},
		{errors.New("too many requests: retry after 600"), maxDelay},
		{errors.New("bad gateway"), baseDelay},
	}
	for _, c := range cases {
		if got := retryDelayFromError(c.err); got != c.want {
			t.Errorf("%v: got %v want %v", c.err, got, c.want)
		}
	}
}
