// Package bot routes webhook events through dedup, lead extraction and
// batching, and runs the periodic loop that flushes batches and sends
// reminders.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diasbot/insta-consultant/internal/batch"
	"github.com/diasbot/insta-consultant/internal/dedup"
	"github.com/diasbot/insta-consultant/internal/extract"
	"github.com/diasbot/insta-consultant/internal/models"
	"github.com/diasbot/insta-consultant/internal/reminder"
	"github.com/diasbot/insta-consultant/internal/storage"
)

// FallbackReminder is sent when reminder copy cannot be generated.
const FallbackReminder = "Hey there! We noticed you haven't made a final decision about our course. " +
	"We'd love to help you grow — let's chat about your needs!"

const reminderSystemPrompt = "You are an AI assistant for an Instagram consultant service. " +
	"Generate a short, friendly reminder message for a potential client. " +
	"Be engaging and encouraging, and aim to convert the lead or complete the payment."

// Completion generates reply text; Reply never fails (it substitutes its
// own fallback), Generate surfaces errors for caller-side fallbacks.
type Completion interface {
	Reply(ctx context.Context, userID, input string) string
	Generate(ctx context.Context, userID, input, system string) (string, error)
}

// Sender is the outbound Instagram surface.
type Sender interface {
	SendMessage(ctx context.Context, recipientID, text string) bool
	ReplyToComment(ctx context.Context, commentID, text string) bool
	FetchCommentText(ctx context.Context, commentID string) (string, error)
}

// OperatorNotifier receives conversion alerts. Optional.
type OperatorNotifier interface {
	LeadConverted(lead *models.Lead)
}

// Options configures a Dispatcher. Zero durations fall back to defaults.
type Options struct {
	Completion Completion
	Sender     Sender
	Leads      storage.LeadStorage
	Notifier   OperatorNotifier
	Logger     *zap.Logger

	Tiers         []models.Tier
	QuietWindow   time.Duration
	SweepInterval time.Duration

	// LeadTargeting switches the reminder pass from silence-cadence
	// tiers to lead-store queries. The two modes are never combined:
	// cadence reminds by how long a user has been quiet, targeting
	// reminds by what the lead record says is still open.
	LeadTargeting    bool
	LeadPassInterval time.Duration
	DedupCapacity    int
}

type Dispatcher struct {
	dedup     *dedup.Window
	batches   *batch.Accumulator
	reminders *reminder.Scheduler

	completion Completion
	sender     Sender
	leads      storage.LeadStorage
	notifier   OperatorNotifier
	logger     *zap.Logger

	leadTargeting    bool
	sweepInterval    time.Duration
	leadPassInterval time.Duration
	lastLeadPass     time.Time

	now func() time.Time
}

func New(opts Options) *Dispatcher {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	if opts.LeadPassInterval <= 0 {
		opts.LeadPassInterval = 12 * time.Hour
	}

	return &Dispatcher{
		dedup:            dedup.NewWindow(opts.DedupCapacity),
		batches:          batch.NewAccumulator(opts.QuietWindow),
		reminders:        reminder.NewScheduler(opts.Tiers),
		completion:       opts.Completion,
		sender:           opts.Sender,
		leads:            opts.Leads,
		notifier:         opts.Notifier,
		logger:           opts.Logger,
		leadTargeting:    opts.LeadTargeting,
		sweepInterval:    opts.SweepInterval,
		leadPassInterval: opts.LeadPassInterval,
		now:              time.Now,
	}
}

// HandleEvent routes one webhook payload. Errors are absorbed per event:
// a bad entry never fails the delivery.
func (d *Dispatcher) HandleEvent(ctx context.Context, payload *models.WebhookPayload) {
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			d.handleMessage(ctx, ev)
		}
		for _, change := range entry.Changes {
			if change.Field == "mentions" {
				d.handleMention(ctx, change.Value)
			}
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev models.MessagingEvent) {
	event := models.InboundEvent{
		SenderID:  ev.Sender.ID,
		Text:      ev.Message.Text,
		Timestamp: ev.Timestamp,
		IsEcho:    ev.Message.IsEcho,
	}
	if event.SenderID == "" || event.Text == "" || event.IsEcho {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = d.now().UnixMilli()
	}

	if !d.dedup.Admit(event.SenderID, event.Text, event.Timestamp) {
		d.logger.Debug("Duplicate delivery dropped",
			zap.String("sender_id", event.SenderID))
		return
	}

	now := d.now()
	d.reminders.RecordActivity(event.SenderID, now)
	d.updateLead(ctx, event.SenderID, event.Text)
	d.batches.Append(event.SenderID, event.Text, now)

	d.logger.Info("Message queued",
		zap.String("sender_id", event.SenderID),
		zap.Int("batch_size", d.batches.Pending(event.SenderID)))
}

func (d *Dispatcher) updateLead(ctx context.Context, senderID, text string) {
	update := extract.FromMessage(text)
	if update.IsZero() {
		return
	}

	lead, err := d.leads.UpsertLead(ctx, senderID, update)
	if err != nil {
		// Conversation continues; the field can be re-extracted later.
		d.logger.Error("Failed to persist lead fields",
			zap.Error(err),
			zap.String("sender_id", senderID))
		return
	}

	if d.notifier != nil && (update.FinalDecision != "" || update.Paid != nil) {
		d.notifier.LeadConverted(lead)
	}
}

func (d *Dispatcher) handleMention(ctx context.Context, mention models.MentionValue) {
	if mention.CommentID == "" {
		d.logger.Warn("Mention without comment id")
		return
	}

	text, err := d.sender.FetchCommentText(ctx, mention.CommentID)
	if err != nil || text == "" {
		d.logger.Error("Failed to fetch comment text",
			zap.Error(err),
			zap.String("comment_id", mention.CommentID))
		return
	}

	reply := d.completion.Reply(ctx, mention.CommentID, text)
	if !d.sender.ReplyToComment(ctx, mention.CommentID, reply) {
		d.logger.Error("Failed to reply to comment",
			zap.String("comment_id", mention.CommentID))
	}
}

// Run drives the periodic sweep until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher loop stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one sweep + reminder pass. Exposed for the loop and for tests.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.flushBatches(ctx)

	if d.leadTargeting {
		now := d.now()
		if now.Sub(d.lastLeadPass) >= d.leadPassInterval {
			d.lastLeadPass = now
			d.sendTargetedReminders(ctx)
		}
	} else {
		d.sendCadenceReminders(ctx)
	}
}

func (d *Dispatcher) flushBatches(ctx context.Context) {
	for _, f := range d.batches.Sweep(d.now()) {
		correlationID := uuid.NewString()
		d.logger.Info("Flushing batch",
			zap.String("user_id", f.UserID),
			zap.Int("messages", f.Count),
			zap.String("correlation_id", correlationID))

		// At-most-once: the batch is consumed whether or not the
		// completion or the send succeeds.
		reply := d.completion.Reply(ctx, f.UserID, f.Combined)
		if !d.sender.SendMessage(ctx, f.UserID, reply) {
			d.logger.Error("Failed to send batched reply",
				zap.String("user_id", f.UserID),
				zap.String("correlation_id", correlationID))
		}
	}
}

func (d *Dispatcher) sendCadenceReminders(ctx context.Context) {
	for _, due := range d.reminders.DueReminders(d.now()) {
		input := fmt.Sprintf(
			"Generate a reminder for a potential client who has been silent for %s. Encourage them to continue the conversation.",
			due.Label)

		text, err := d.completion.Generate(ctx, due.UserID, input, reminderSystemPrompt)
		if err != nil {
			// The tier stays marked sent either way; retrying a
			// failed generation every tick would spam the user.
			d.logger.Error("Failed to generate reminder",
				zap.Error(err),
				zap.String("user_id", due.UserID),
				zap.String("tier", due.Label))
			text = FallbackReminder
		}

		if d.sender.SendMessage(ctx, due.UserID, text) {
			d.logger.Info("Sent reminder",
				zap.String("user_id", due.UserID),
				zap.String("tier", due.Label))
		} else {
			d.logger.Error("Failed to send reminder",
				zap.String("user_id", due.UserID),
				zap.String("tier", due.Label))
		}
	}
}

func (d *Dispatcher) sendTargetedReminders(ctx context.Context) {
	leads, err := d.leads.LeadsNeedingReminder(ctx)
	if err != nil {
		d.logger.Error("Failed to query leads for reminders", zap.Error(err))
		return
	}

	for _, lead := range leads {
		payment := "pending"
		if lead.Paid {
			payment = "completed"
		}
		input := fmt.Sprintf(
			"Generate a targeted reminder for a client whose final decision is %q and whose payment status is %s.",
			lead.FinalDecision, payment)

		text, err := d.completion.Generate(ctx, lead.InstagramID, input, reminderSystemPrompt)
		if err != nil {
			d.logger.Error("Failed to generate targeted reminder",
				zap.Error(err),
				zap.String("instagram_id", lead.InstagramID))
			text = FallbackReminder
		}

		if d.sender.SendMessage(ctx, lead.InstagramID, text) {
			d.logger.Info("Sent targeted reminder",
				zap.String("instagram_id", lead.InstagramID))
		} else {
			d.logger.Error("Failed to send targeted reminder",
				zap.String("instagram_id", lead.InstagramID))
		}
	}
}
