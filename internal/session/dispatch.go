package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mfigueroasmc/soporte-Sistemas/internal/live"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/support"
)

// Tool names the model is allowed to invoke.
const (
	ToolAnalyzeProblem = "analyze-problem"
	ToolRegisterTicket = "register-ticket"
)

const generateTimeout = 30 * time.Second

const tipsPrompt = `Eres un técnico de soporte de sistemas municipales.
Propón como máximo 3 pasos breves que el usuario pueda intentar ahora mismo,
uno por línea, sin numeración ni explicaciones adicionales.

Sistema: %s
Problema: %s`

const draftPrompt = `Redacta un correo breve y formal en español dirigido al área de
soporte técnico para dar seguimiento a un ticket. La primera línea debe ser
exactamente "Asunto: <asunto breve>". Luego el cuerpo del mensaje.

Ticket: %s
Municipio: %s
Sistema: %s
Descripción: %s`

// dispatcher routes tool invocations coming from the remote channel. Results
// go back over the same channel; side effects surface through the session
// listener, which each background task resolves at delivery time so work
// finishing after a disconnect lands on the no-op listener.
type dispatcher struct {
	sess    *Session
	channel Channel
	gen     Generator
	logID   string
}

func (d *dispatcher) dispatch(inv live.ToolInvocation) {
	log.Printf("[%s] tool call %s (%s)", d.logID, inv.Name, inv.ID)
	switch inv.Name {
	case ToolAnalyzeProblem:
		// Acknowledge right away so the conversation keeps flowing; the
		// suggested steps arrive later through the listener.
		d.sendResult(inv, "Análisis iniciado. Los pasos sugeridos aparecerán en pantalla.", false)
		go d.generateTips(inv)
	case ToolRegisterTicket:
		// The ticket exists as soon as the model asks for it; only the draft
		// and the reply run in the background.
		ticket := support.NewTicket(
			inv.Args["email"],
			inv.Args["municipality"],
			inv.Args["system"],
			inv.Args["description"],
		)
		log.Printf("[%s] ticket %s registered for %s", d.logID, ticket.ID, ticket.Municipality)
		d.sess.events().TicketCreated(ticket)
		go d.draftAndRespond(inv, ticket)
	default:
		log.Printf("[%s] unknown tool %q", d.logID, inv.Name)
		d.sendResult(inv, "Herramienta desconocida.", true)
	}
}

// generateTips produces up to three suggested steps for the reported
// problem. Generation failures are logged and swallowed; the user already
// got the spoken acknowledgment.
func (d *dispatcher) generateTips(inv live.ToolInvocation) {
	system := inv.Args["system"]
	description := inv.Args["description"]

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()
	text, err := d.gen.Generate(ctx, fmt.Sprintf(tipsPrompt, system, description))
	if err != nil {
		log.Printf("[%s] tips generation failed: %v", d.logID, err)
		return
	}
	title := "Pasos sugeridos"
	if s := strings.TrimSpace(system); s != "" {
		title = fmt.Sprintf("Pasos sugeridos para %s", s)
	}
	set := support.ParseSolutions(title, text)
	if len(set.Steps) == 0 {
		log.Printf("[%s] tips generation returned nothing usable", d.logID)
		return
	}
	d.sess.events().SolutionsReady(set)
}

// draftAndRespond attempts the email draft for a freshly registered ticket
// and only then answers the tool call. A draft failure does not fail the
// invocation: the ticket already exists.
func (d *dispatcher) draftAndRespond(inv live.ToolInvocation, ticket support.TicketRecord) {
	output := fmt.Sprintf("Ticket %s registrado. El borrador de correo está listo en pantalla.", ticket.ID)
	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()
	text, err := d.gen.Generate(ctx, fmt.Sprintf(draftPrompt,
		ticket.ID, ticket.Municipality, ticket.System, ticket.Description))
	if err != nil {
		log.Printf("[%s] email draft for %s failed: %v", d.logID, ticket.ID, err)
		output = fmt.Sprintf("Ticket %s registrado, pero la generación del borrador de correo falló.", ticket.ID)
	} else {
		d.sess.events().EmailReady(support.ParseEmailDraft(ticket, text))
	}
	d.sendResult(inv, output, false)
}

func (d *dispatcher) sendResult(inv live.ToolInvocation, output string, failed bool) {
	res := live.ToolResult{ID: inv.ID, Name: inv.Name, Output: output, Failed: failed}
	if err := d.channel.SendToolResult(res); err != nil {
		log.Printf("[%s] tool result for %s: %v", d.logID, inv.Name, err)
	}
}
