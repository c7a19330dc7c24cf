package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mfigueroasmc/soporte-Sistemas/internal/audio"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/config"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/console"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/live"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/llm"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/session"
)

// appListener fans session events to the console and signals process exit
// when the session ends.
type appListener struct {
	*console.Console
	done chan struct{}
	once sync.Once
}

func (l *appListener) Closed() {
	l.Console.Closed()
	l.once.Do(func() { close(l.done) })
}

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	user := flag.String("user", "", "name the assistant greets you by")
	flag.Parse()

	cfg := config.Load()

	ctx := context.Background()
	gen, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.TextModel)
	if err != nil {
		log.Fatalf("text model: %v", err)
	}

	ui := console.New(nil)
	lis := &appListener{Console: ui, done: make(chan struct{})}

	sess := session.New(session.Deps{
		Dial: func(ctx context.Context, userIdentity string) (session.Channel, error) {
			return live.Dial(ctx, live.Config{
				APIKey:            cfg.GeminiAPIKey,
				Model:             cfg.LiveModel,
				SystemInstruction: systemInstruction(userIdentity),
				Voice:             cfg.Voice,
				Language:          cfg.Language,
				Tools:             supportTools(),
			})
		},
		OpenCapture: func(cb audio.CaptureCallbacks) (session.Capture, error) {
			return audio.OpenCapture(cb)
		},
		NewPlayer: func() (session.Player, error) {
			speaker, err := audio.NewSpeaker()
			if err != nil {
				return nil, err
			}
			return audio.NewScheduler(speaker, audio.PlaybackRate), nil
		},
		Generator: gen,
		Listener:  lis,
	})

	ui.Status("Conectando con el asistente de soporte...")
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = sess.Connect(dialCtx, *user)
	cancel()
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	ui.Status("Conectado. Habla cuando quieras; Ctrl+C para terminar.")

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
		sess.Disconnect()
		<-lis.done
	case <-lis.done:
	}
}
