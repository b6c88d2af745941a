package models

import "time"

// WebhookPayload is the top-level body Instagram POSTs to the webhook.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events delivered for one account.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging,omitempty"`
	Changes   []Change         `json:"changes,omitempty"`
}

// MessagingEvent is a single direct-message delivery.
type MessagingEvent struct {
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   Message     `json:"message"`
}

type Participant struct {
	ID string `json:"id"`
}

type Message struct {
	MID    string `json:"mid,omitempty"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// Change carries a non-messaging update; only comment mentions are acted on.
type Change struct {
	Field string       `json:"field"`
	Value MentionValue `json:"value"`
}

type MentionValue struct {
	MediaID   string `json:"media_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

// InboundEvent is the normalized form of a messaging delivery,
// constructed per webhook POST and discarded after routing.
type InboundEvent struct {
	SenderID  string
	Text      string
	Timestamp int64 // ms since epoch
	IsEcho    bool
}

// Decision values stored on a lead's final_decision field.
const (
	DecisionSignedUp = "signed up"
	DecisionNotSure  = "not sure"
	DecisionThinking = "I will think about it"
)

// Lead is the persisted profile of a prospective client, filled
// incrementally from extracted message fields.
type Lead struct {
	InstagramID      string    `json:"instagram_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	TelegramUsername string    `json:"telegram_username"`
	PhoneNumber      string    `json:"phone_number"`
	CityCountry      string    `json:"city_country"`
	Interests        string    `json:"interests"`
	FinalDecision    string    `json:"final_decision"`
	Paid             bool      `json:"paid"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// LeadUpdate is a partial lead: empty strings and a nil Paid mean
// "leave the stored value alone".
type LeadUpdate struct {
	Name             string
	Email            string
	TelegramUsername string
	PhoneNumber      string
	CityCountry      string
	Interests        string
	FinalDecision    string
	Paid             *bool
}

// IsZero reports whether the update carries no new information.
func (u LeadUpdate) IsZero() bool {
	return u.Name == "" && u.Email == "" && u.TelegramUsername == "" &&
		u.PhoneNumber == "" && u.CityCountry == "" && u.Interests == "" &&
		u.FinalDecision == "" && u.Paid == nil
}

// Apply merges the update into the lead. Newer non-empty values win;
// untouched fields keep their stored value.
func (l *Lead) Apply(u LeadUpdate) {
	if u.Name != "" {
		l.Name = u.Name
	}
	if u.Email != "" {
		l.Email = u.Email
	}
	if u.TelegramUsername != "" {
		l.TelegramUsername = u.TelegramUsername
	}
	if u.PhoneNumber != "" {
		l.PhoneNumber = u.PhoneNumber
	}
	if u.CityCountry != "" {
		l.CityCountry = u.CityCountry
	}
	if u.Interests != "" {
		l.Interests = u.Interests
	}
	if u.FinalDecision != "" {
		l.FinalDecision = u.FinalDecision
	}
	if u.Paid != nil {
		l.Paid = *u.Paid
	}
}

// Tier is one reminder cadence step: after Interval of silence the
// reminder labeled Label becomes due.
type Tier struct {
	Interval time.Duration
	Label    string
}

// DefaultTiers is the cadence the consultant service runs with.
func DefaultTiers() []Tier {
	return []Tier{
		{Interval: 12 * time.Hour, Label: "12 hours"},
		{Interval: 7 * 24 * time.Hour, Label: "1 week"},
		{Interval: 14 * 24 * time.Hour, Label: "2 weeks"},
		{Interval: 30 * 24 * time.Hour, Label: "1 month"},
	}
}
