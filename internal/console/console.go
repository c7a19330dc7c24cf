// Package console renders session events as styled terminal output.
package console

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mfigueroasmc/soporte-Sistemas/internal/support"
)

const (
	meterWidth = 30
	meterEvery = 100 * time.Millisecond
)

// Console is the terminal view of one support conversation. All methods are
// safe for concurrent use; events arrive from capture callbacks, the session
// loop and background generation tasks.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	styles    styles
	lastMeter time.Time
	meterOpen bool
	lastEmail string
}

// New returns a console writing to w. A nil writer defaults to stdout.
func New(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{out: w, styles: newStyles()}
}

// Status prints a standalone progress line, used around connect and teardown.
func (c *Console) Status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block(c.styles.faint.Render(msg))
}

// Volume redraws the microphone level meter in place. Redraws are throttled
// so a 20ms frame cadence does not flood the terminal.
func (c *Console) Volume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Sub(c.lastMeter) < meterEvery {
		return
	}
	c.lastMeter = now
	fmt.Fprintf(c.out, "\r%s", renderMeter(v, meterWidth, c.styles))
	c.meterOpen = true
}

func (c *Console) TicketCreated(t support.TicketRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEmail = t.Email
	c.block(
		c.styles.title.Render(fmt.Sprintf("Ticket %s", t.ID)),
		c.styles.label.Render("Municipio: ")+c.styles.value.Render(t.Municipality),
		c.styles.label.Render("Sistema:   ")+c.styles.value.Render(t.System),
		c.styles.label.Render("Detalle:   ")+c.styles.value.Render(t.Description),
	)
}

func (c *Console) SolutionsReady(s support.SolutionSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := []string{c.styles.title.Render(s.Title)}
	for _, step := range s.Steps {
		lines = append(lines, c.styles.step.Render("  - "+step))
	}
	c.block(lines...)
}

func (c *Console) EmailReady(d support.EmailDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := []string{
		c.styles.title.Render("Borrador de correo"),
		c.styles.label.Render("Asunto: ") + c.styles.value.Render(d.Subject),
		c.styles.value.Render(d.Body),
	}
	if c.lastEmail != "" {
		lines = append(lines, c.styles.link.Render(d.MailtoURL(c.lastEmail)))
	}
	c.block(lines...)
}

func (c *Console) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block(c.styles.warning.Render(msg))
}

func (c *Console) Closed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block(c.styles.faint.Render("Sesión finalizada."))
}

// block prints lines as one left-joined paragraph, first moving off the
// meter line when one is on screen. Callers hold the lock.
func (c *Console) block(lines ...string) {
	if c.meterOpen {
		fmt.Fprintln(c.out)
		c.meterOpen = false
	}
	fmt.Fprintln(c.out, lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderMeter(v float64, width int, s styles) string {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(math.Round(v * float64(width)))
	if filled > width {
		filled = width
	}
	fill := s.barFill.Render(strings.Repeat("=", filled))
	empty := s.barEmpty.Render(strings.Repeat("-", width-filled))
	return s.label.Render("mic ") + s.bracket.Render("[") + fill + empty + s.bracket.Render("]")
}
