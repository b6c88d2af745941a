// Package extract pulls lead fields out of free-form messages with
// regexp heuristics. It is best-effort glue: a miss just means the field
// stays unset until a later message mentions it.
package extract

import (
	"regexp"
	"strings"

	"github.com/diasbot/insta-consultant/internal/models"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// Anchored on "telegram" so plain @mentions and email addresses are
	// not mistaken for handles.
	telegramRe = regexp.MustCompile(`(?i)telegram[^@\n]*@([A-Za-z0-9_]{3,})`)

	phoneRe = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)

	// Case-sensitive capture: names are expected to be capitalized, which
	// keeps "call me when..." style sentences from producing garbage.
	nameRe = regexp.MustCompile(`(?:[Cc]all me|[Mm]y name is|[Tt]his is)\s+([A-Z][a-zA-Z'’-]*(?:\s+[A-Z][a-zA-Z'’-]*){0,2})`)

	locationRe = regexp.MustCompile(`(?:[Ii]['’]?m living in|[Ii] live in|[Ii]['’]?m from|[Ii]['’]?m based in)\s+([A-Z][A-Za-z ,.'’-]*[A-Za-z])`)

	interestsRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)passion for\s+([^.?!\n]+)`),
		regexp.MustCompile(`(?i)my interests?\s+(?:are|include)\s+([^.?!\n]+)`),
		regexp.MustCompile(`(?i)interested in\s+([^.?!\n]+)`),
	}

	signedUpRe = regexp.MustCompile(`(?i)(?:i['’]?d like to sign up|sign me up|i want to (?:sign up|enroll|join)|i['’]?ll take the course)`)
	thinkingRe = regexp.MustCompile(`(?i)(?:i['’]?ll|i will|i need to) think about it`)
	notSureRe  = regexp.MustCompile(`(?i)\b(?:i['’]?m )?not sure\b`)
	paidRe     = regexp.MustCompile(`(?i)(?:i['’]?ve (?:completed|made|sent) the payment|payment (?:is )?(?:done|complete|completed)|i (?:have |just )?paid)`)
)

// FromMessage scans one message and returns whatever lead fields it
// mentions. Fields not found are left zero so the store's merge keeps
// previously extracted values.
func FromMessage(text string) models.LeadUpdate {
	var u models.LeadUpdate

	if m := emailRe.FindString(text); m != "" {
		u.Email = m
	}
	if m := telegramRe.FindStringSubmatch(text); m != nil {
		u.TelegramUsername = "@" + m[1]
	}
	if m := phoneRe.FindString(text); m != "" && digitCount(m) >= 7 {
		u.PhoneNumber = strings.TrimSpace(m)
	}
	if m := nameRe.FindStringSubmatch(text); m != nil {
		u.Name = strings.TrimSpace(m[1])
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		u.CityCountry = strings.TrimSpace(m[1])
	}
	for _, re := range interestsRes {
		if m := re.FindStringSubmatch(text); m != nil {
			u.Interests = strings.TrimSpace(m[1])
			break
		}
	}

	switch {
	case signedUpRe.MatchString(text):
		u.FinalDecision = models.DecisionSignedUp
	case thinkingRe.MatchString(text):
		u.FinalDecision = models.DecisionThinking
	case notSureRe.MatchString(text):
		u.FinalDecision = models.DecisionNotSure
	}

	if paidRe.MatchString(text) {
		paid := true
		u.Paid = &paid
	}

	return u
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
