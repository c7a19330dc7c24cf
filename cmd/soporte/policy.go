package main

import (
	"fmt"
	"strings"

	"github.com/mfigueroasmc/soporte-Sistemas/internal/live"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/session"
)

const instructionBase = `Eres un agente telefónico de soporte técnico para los sistemas
informáticos de municipios. Hablas únicamente en español, con frases cortas
y tono cordial.

Flujo de la conversación:
1. Saluda y pregunta qué sistema presenta el problema y qué ocurre.
2. Cuando tengas el sistema y una descripción clara, invoca "analyze-problem"
   y sigue conversando; los pasos sugeridos aparecen en pantalla.
3. Si el problema persiste o la persona lo pide, solicita correo electrónico,
   municipio, sistema y descripción, y registra el caso con "register-ticket".
4. Confirma el número de ticket en voz alta y despídete.

Nunca inventes números de ticket; usa siempre el que devuelve la herramienta.`

func systemInstruction(userIdentity string) string {
	if u := strings.TrimSpace(userIdentity); u != "" {
		return instructionBase + fmt.Sprintf("\n\nLa persona usuaria se llama %s; salúdala por su nombre.", u)
	}
	return instructionBase
}

func supportTools() []live.ToolDeclaration {
	return []live.ToolDeclaration{
		{
			Name:        session.ToolAnalyzeProblem,
			Description: "Analiza el problema reportado y muestra pasos sugeridos en pantalla.",
			Parameters: &live.Schema{
				Type: "OBJECT",
				Properties: map[string]*live.Schema{
					"system":      {Type: "STRING", Description: "Sistema municipal afectado."},
					"description": {Type: "STRING", Description: "Descripción del problema."},
				},
				Required: []string{"system", "description"},
			},
		},
		{
			Name:        session.ToolRegisterTicket,
			Description: "Registra un ticket de soporte y prepara un borrador de correo de seguimiento.",
			Parameters: &live.Schema{
				Type: "OBJECT",
				Properties: map[string]*live.Schema{
					"email":        {Type: "STRING", Description: "Correo electrónico de contacto."},
					"municipality": {Type: "STRING", Description: "Municipio que reporta."},
					"system":       {Type: "STRING", Description: "Sistema municipal afectado."},
					"description":  {Type: "STRING", Description: "Descripción del problema."},
				},
				Required: []string{"email", "municipality", "system", "description"},
			},
		},
	}
}
