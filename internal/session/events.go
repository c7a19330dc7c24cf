package session

import "github.com/mfigueroasmc/soporte-Sistemas/internal/support"

// Listener receives session events. At most one listener is active per
// session; all notifications are fire-and-forget and must not block.
type Listener interface {
	// Volume reports the capture level in [0,1] on every frame.
	Volume(level float64)
	// TicketCreated hands over a newly registered ticket.
	TicketCreated(t support.TicketRecord)
	// SolutionsReady delivers troubleshooting steps for the current problem.
	SolutionsReady(s support.SolutionSet)
	// EmailReady delivers the draft for the most recent ticket.
	EmailReady(d support.EmailDraft)
	// Error surfaces a localized, user-facing failure message.
	Error(message string)
	// Closed fires once after teardown completes.
	Closed()
}

// NopListener discards every event. Background tasks that finish after
// teardown are routed here.
type NopListener struct{}

func (NopListener) Volume(float64)                      {}
func (NopListener) TicketCreated(support.TicketRecord)  {}
func (NopListener) SolutionsReady(support.SolutionSet)  {}
func (NopListener) EmailReady(support.EmailDraft)       {}
func (NopListener) Error(string)                        {}
func (NopListener) Closed()                             {}
