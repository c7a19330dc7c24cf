package support

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

// TicketRecord is one registered support request. Records are immutable after
// creation; ownership passes to the UI collaborator via the event surface.
type TicketRecord struct {
	ID           string
	Email        string
	Municipality string
	System       string
	Description  string
	CreatedAt    time.Time
}

// NewTicket builds a record with a locally generated identifier.
func NewTicket(email, municipality, system, description string) TicketRecord {
	return TicketRecord{
		ID:           NewTicketID(),
		Email:        strings.TrimSpace(email),
		Municipality: strings.TrimSpace(municipality),
		System:       strings.TrimSpace(system),
		Description:  strings.TrimSpace(description),
		CreatedAt:    time.Now(),
	}
}

// NewTicketID returns "T-" plus 5 random digits. Collisions are possible and
// not detected; the help desk dedupes by email and timestamp.
func NewTicketID() string {
	return fmt.Sprintf("T-%05d", rand.Intn(100000))
}

// EmailDraft is an unsent subject/body pair handed to an external send
// mechanism (mailto link in the console).
type EmailDraft struct {
	Subject string
	Body    string
}

// subjectMarker prefixes the subject line in generated draft text.
const subjectMarker = "Asunto:"

// ParseEmailDraft extracts a draft from generated text. When the first line
// carries the subject marker, the subject is taken from it and the line is
// dropped from the body; otherwise the subject is synthesized from the ticket
// and the body is the full text.
func ParseEmailDraft(t TicketRecord, text string) EmailDraft {
	trimmed := strings.TrimSpace(text)
	first, rest, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	if strings.HasPrefix(first, subjectMarker) {
		subject := strings.TrimSpace(strings.TrimPrefix(first, subjectMarker))
		if subject != "" {
			return EmailDraft{Subject: subject, Body: strings.TrimSpace(rest)}
		}
	}
	return EmailDraft{
		Subject: fmt.Sprintf("Ticket %s - Soporte %s", t.ID, t.Municipality),
		Body:    trimmed,
	}
}

// MailtoURL builds the hand-off link for the draft. Values.Encode escapes
// spaces as "+", which mail clients do not decode, so those are rewritten.
func (d EmailDraft) MailtoURL(to string) string {
	q := url.Values{}
	q.Set("subject", d.Subject)
	q.Set("body", d.Body)
	return "mailto:" + to + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// SolutionSet is an ephemeral list of remediation steps for the problem under
// discussion. The next analysis supersedes it.
type SolutionSet struct {
	Title string
	Steps []string
}

const maxSolutionSteps = 3

// ParseSolutions splits generated tip text into at most three usable steps,
// skipping blank lines and stripping leading list markers.
func ParseSolutions(title, text string) SolutionSet {
	steps := make([]string, 0, maxSolutionSteps)
	for _, line := range strings.Split(text, "\n") {
		step := stripListMarker(line)
		if step == "" {
			continue
		}
		steps = append(steps, step)
		if len(steps) == maxSolutionSteps {
			break
		}
	}
	return SolutionSet{Title: title, Steps: steps}
}

// stripListMarker removes a leading bullet ("-", "*", "•") or a short
// numeric marker ("1.", "2)") from a line.
func stripListMarker(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*•")
	if i := strings.IndexAny(s, ".)"); i > 0 && i <= 2 && allDigits(s[:i]) {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
