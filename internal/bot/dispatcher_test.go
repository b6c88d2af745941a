package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/diasbot/insta-consultant/internal/models"
	"github.com/diasbot/insta-consultant/internal/storage"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCompletion struct {
	replies     []string // inputs passed to Reply
	generates   []string // inputs passed to Generate
	generateErr error
}

func (f *fakeCompletion) Reply(ctx context.Context, userID, input string) string {
	f.replies = append(f.replies, input)
	return "reply to: " + input
}

func (f *fakeCompletion) Generate(ctx context.Context, userID, input, system string) (string, error) {
	f.generates = append(f.generates, input)
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return "generated: " + input, nil
}

type sentMessage struct {
	recipient string
	text      string
}

type fakeSender struct {
	sent        []sentMessage
	replies     []sentMessage
	commentText string
	fetchErr    error
	sendFails   bool
}

func (f *fakeSender) SendMessage(ctx context.Context, recipientID, text string) bool {
	if f.sendFails {
		return false
	}
	f.sent = append(f.sent, sentMessage{recipientID, text})
	return true
}

func (f *fakeSender) ReplyToComment(ctx context.Context, commentID, text string) bool {
	f.replies = append(f.replies, sentMessage{commentID, text})
	return true
}

func (f *fakeSender) FetchCommentText(ctx context.Context, commentID string) (string, error) {
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return f.commentText, nil
}

type fakeNotifier struct {
	converted []*models.Lead
}

func (f *fakeNotifier) LeadConverted(lead *models.Lead) {
	f.converted = append(f.converted, lead)
}

type clock struct {
	now time.Time
}

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDispatcher(opts Options) (*Dispatcher, *clock) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Leads == nil {
		opts.Leads = storage.NewMemoryStorage()
	}
	d := New(opts)
	c := &clock{now: t0}
	d.now = func() time.Time { return c.now }
	return d, c
}

func messagePayload(senderID, text string, ts int64) *models.WebhookPayload {
	return &models.WebhookPayload{
		Object: "instagram",
		Entry: []models.Entry{{
			Messaging: []models.MessagingEvent{{
				Sender:    models.Participant{ID: senderID},
				Timestamp: ts,
				Message:   models.Message{Text: text},
			}},
		}},
	}
}

func TestBatchedMessagesProduceOneReply(t *testing.T) {
	comp := &fakeCompletion{}
	sender := &fakeSender{}
	d, clk := newTestDispatcher(Options{
		Completion:  comp,
		Sender:      sender,
		QuietWindow: 5 * time.Second,
	})
	ctx := context.Background()

	d.HandleEvent(ctx, messagePayload("user1", "hi", 1))
	clk.advance(2 * time.Second)
	d.HandleEvent(ctx, messagePayload("user1", "how are you", 2))

	// Inside the quiet window: nothing flushes.
	clk.advance(3 * time.Second)
	d.Tick(ctx)
	if len(sender.sent) != 0 {
		t.Fatalf("sent %d messages inside quiet window, want 0", len(sender.sent))
	}

	clk.advance(3 * time.Second)
	d.Tick(ctx)
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want exactly 1 combined reply", len(sender.sent))
	}
	if len(comp.replies) != 1 || comp.replies[0] != "hi\nhow are you" {
		t.Errorf("completion input = %v, want one combined text", comp.replies)
	}

	// A later tick must not flush the same batch again.
	clk.advance(10 * time.Second)
	d.Tick(ctx)
	if len(sender.sent) != 1 {
		t.Errorf("batch flushed twice")
	}
}

func TestDuplicateDeliveryProcessedOnce(t *testing.T) {
	comp := &fakeCompletion{}
	sender := &fakeSender{}
	d, clk := newTestDispatcher(Options{
		Completion:  comp,
		Sender:      sender,
		QuietWindow: 5 * time.Second,
	})
	ctx := context.Background()

	payload := messagePayload("user1", "hello", 1700000000000)
	d.HandleEvent(ctx, payload)
	d.HandleEvent(ctx, payload)

	clk.advance(10 * time.Second)
	d.Tick(ctx)

	if len(comp.replies) != 1 || comp.replies[0] != "hello" {
		t.Errorf("completion inputs = %v, want single un-duplicated text", comp.replies)
	}
}

func TestEchoAndEmptyMessagesSkipped(t *testing.T) {
	comp := &fakeCompletion{}
	sender := &fakeSender{}
	d, clk := newTestDispatcher(Options{
		Completion:  comp,
		Sender:      sender,
		QuietWindow: time.Second,
	})
	ctx := context.Background()

	echo := messagePayload("user1", "echoed", 1)
	echo.Entry[0].Messaging[0].Message.IsEcho = true
	d.HandleEvent(ctx, echo)
	d.HandleEvent(ctx, messagePayload("user1", "", 2))
	d.HandleEvent(ctx, messagePayload("", "orphan", 3))

	clk.advance(5 * time.Second)
	d.Tick(ctx)

	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want nothing for echo/empty events", sender.sent)
	}
}

func TestSendFailureConsumesBatch(t *testing.T) {
	comp := &fakeCompletion{}
	sender := &fakeSender{sendFails: true}
	d, clk := newTestDispatcher(Options{
		Completion:  comp,
		Sender:      sender,
		QuietWindow: time.Second,
	})
	ctx := context.Background()

	d.HandleEvent(ctx, messagePayload("user1", "hi", 1))
	clk.advance(5 * time.Second)
	d.Tick(ctx)

	// At-most-once: the failed batch is not retried on the next tick.
	sender.sendFails = false
	clk.advance(5 * time.Second)
	d.Tick(ctx)
	if len(sender.sent) != 0 {
		t.Errorf("failed batch was retried: %v", sender.sent)
	}
}

func TestMentionBypassesBatching(t *testing.T) {
	comp := &fakeCompletion{}
	sender := &fakeSender{commentText: "love this post"}
	d, _ := newTestDispatcher(Options{
		Completion: comp,
		Sender:     sender,
	})

	d.HandleEvent(context.Background(), &models.WebhookPayload{
		Object: "instagram",
		Entry: []models.Entry{{
			Changes: []models.Change{{
				Field: "mentions",
				Value: models.MentionValue{CommentID: "c42"},
			}},
		}},
	})

	if len(sender.replies) != 1 {
		t.Fatalf("comment replies = %d, want 1 (no batching for mentions)", len(sender.replies))
	}
	if sender.replies[0].recipient != "c42" {
		t.Errorf("replied to %q, want c42", sender.replies[0].recipient)
	}
	if comp.replies[0] != "love this post" {
		t.Errorf("completion input = %q, want the fetched comment text", comp.replies[0])
	}
}

func TestMentionFetchFailureDropsEvent(t *testing.T) {
	sender := &fakeSender{fetchErr: errors.New("graph api down")}
	d, _ := newTestDispatcher(Options{
		Completion: &fakeCompletion{},
		Sender:     sender,
	})

	d.HandleEvent(context.Background(), &models.WebhookPayload{
		Object: "instagram",
		Entry: []models.Entry{{
			Changes: []models.Change{{
				Field: "mentions",
				Value: models.MentionValue{CommentID: "c42"},
			}},
		}},
	})

	if len(sender.replies) != 0 {
		t.Errorf("replied despite fetch failure")
	}
}

func TestCadenceRemindersSentOncePerTier(t *testing.T) {
	comp := &fakeCompletion{}
	sender := &fakeSender{}
	d, clk := newTestDispatcher(Options{
		Completion:  comp,
		Sender:      sender,
		QuietWindow: time.Second,
		Tiers: []models.Tier{
			{Interval: time.Hour, Label: "1h"},
			{Interval: 2 * time.Hour, Label: "2h"},
		},
	})
	ctx := context.Background()

	d.HandleEvent(ctx, messagePayload("user1", "hi", 1))
	clk.advance(5 * time.Second)
	d.Tick(ctx) // flushes the batch

	baseline := len(sender.sent)

	clk.advance(time.Hour)
	d.Tick(ctx)
	if got := len(sender.sent) - baseline; got != 1 {
		t.Fatalf("reminders after 1h tier = %d, want 1", got)
	}

	clk.advance(time.Hour)
	d.Tick(ctx)
	if got := len(sender.sent) - baseline; got != 2 {
		t.Fatalf("reminders after 2h tier = %d, want 2", got)
	}

	// No tier fires twice.
	clk.advance(48 * time.Hour)
	d.Tick(ctx)
	if got := len(sender.sent) - baseline; got != 2 {
		t.Errorf("reminders repeated: %d sends", got)
	}
}

func TestReminderGenerationFailureUsesFallback(t *testing.T) {
	comp := &fakeCompletion{generateErr: errors.New("api down")}
	sender := &fakeSender{}
	d, clk := newTestDispatcher(Options{
		Completion:  comp,
		Sender:      sender,
		QuietWindow: time.Second,
		Tiers:       []models.Tier{{Interval: time.Hour, Label: "1h"}},
	})
	ctx := context.Background()

	d.HandleEvent(ctx, messagePayload("user1", "hi", 1))
	clk.advance(5 * time.Second)
	d.Tick(ctx)
	baseline := len(sender.sent)

	clk.advance(2 * time.Hour)
	d.Tick(ctx)

	reminders := sender.sent[baseline:]
	if len(reminders) != 1 || reminders[0].text != FallbackReminder {
		t.Fatalf("reminders = %v, want single fallback message", reminders)
	}

	// Tier stays consumed even though generation failed.
	comp.generateErr = nil
	clk.advance(time.Hour)
	d.Tick(ctx)
	if len(sender.sent) != baseline+1 {
		t.Errorf("failed tier was retried")
	}
}

func TestLeadFieldsExtractedAndNotified(t *testing.T) {
	store := storage.NewMemoryStorage()
	notifier := &fakeNotifier{}
	d, _ := newTestDispatcher(Options{
		Completion: &fakeCompletion{},
		Sender:     &fakeSender{},
		Leads:      store,
		Notifier:   notifier,
	})
	ctx := context.Background()

	d.HandleEvent(ctx, messagePayload("user1", "My email is jane@example.com", 1))
	d.HandleEvent(ctx, messagePayload("user1", "I'd like to sign up for the course!", 2))

	lead, err := store.GetLead(ctx, "user1")
	if err != nil || lead == nil {
		t.Fatalf("lead not stored: %v", err)
	}
	if lead.Email != "jane@example.com" {
		t.Errorf("Email = %q", lead.Email)
	}
	if lead.FinalDecision != models.DecisionSignedUp {
		t.Errorf("FinalDecision = %q", lead.FinalDecision)
	}

	// Only the decision-bearing message triggers an operator alert.
	if len(notifier.converted) != 1 {
		t.Errorf("operator alerts = %d, want 1", len(notifier.converted))
	}
}

func TestLeadTargetingModeQueriesStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	paid := true
	store.UpsertLead(ctx, "open_lead", models.LeadUpdate{FinalDecision: models.DecisionNotSure})
	store.UpsertLead(ctx, "closed_lead", models.LeadUpdate{
		FinalDecision: models.DecisionSignedUp,
		Paid:          &paid,
	})

	comp := &fakeCompletion{}
	sender := &fakeSender{}
	d, clk := newTestDispatcher(Options{
		Completion:       comp,
		Sender:           sender,
		Leads:            store,
		LeadTargeting:    true,
		LeadPassInterval: 12 * time.Hour,
	})

	d.Tick(ctx)
	if len(sender.sent) != 1 || sender.sent[0].recipient != "open_lead" {
		t.Fatalf("targeted sends = %v, want one to open_lead", sender.sent)
	}

	// Next pass only after the configured interval.
	clk.advance(time.Hour)
	d.Tick(ctx)
	if len(sender.sent) != 1 {
		t.Fatalf("lead pass repeated before interval elapsed")
	}
	clk.advance(12 * time.Hour)
	d.Tick(ctx)
	if len(sender.sent) != 2 {
		t.Errorf("lead pass did not run after interval: %d sends", len(sender.sent))
	}
}

func TestLeadTargetingDisablesCadence(t *testing.T) {
	comp := &fakeCompletion{}
	sender := &fakeSender{}
	d, clk := newTestDispatcher(Options{
		Completion:       comp,
		Sender:           sender,
		QuietWindow:      time.Second,
		LeadTargeting:    true,
		LeadPassInterval: 12 * time.Hour,
		Tiers:            []models.Tier{{Interval: time.Hour, Label: "1h"}},
	})
	ctx := context.Background()

	d.HandleEvent(ctx, messagePayload("user1", "hi", 1))
	clk.advance(5 * time.Second)
	d.Tick(ctx)
	baseline := len(sender.sent)

	// Hours of silence, but cadence tiers must stay quiet in lead mode.
	clk.advance(3 * time.Hour)
	d.Tick(ctx)
	for _, m := range sender.sent[baseline:] {
		if strings.Contains(m.text, "silent") {
			t.Errorf("cadence reminder sent in lead-targeting mode: %v", m)
		}
	}
}
