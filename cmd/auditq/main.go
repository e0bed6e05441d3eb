// Command auditq is the terminal monitor for the audit scheduler daemon.
// It polls the daemon's HTTP API and renders the queue, running set, and
// recent events; its settings form writes the shared config files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/YingxueSec/AI-Code-Sec/internal/config"
	"github.com/YingxueSec/AI-Code-Sec/internal/tui"
)

func main() {
	addr := flag.String("addr", "", "daemon base URL (defaults to http://<listen_addr> from config)")
	pollInterval := flag.Duration("poll", 2*time.Second, "status poll interval")
	globalPath := flag.String("global-config", config.GlobalPath(), "global config path")
	projectPath := flag.String("project-config", config.ProjectPath(), "project config path")
	flag.Parse()

	// Signal-aware context so Ctrl+C outside the TUI still cleans up
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*globalPath, *projectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	baseURL := *addr
	if baseURL == "" {
		baseURL = "http://" + cfg.ListenAddr
	}

	client := tui.NewClient(baseURL)
	model := tui.New(client, cfg, *globalPath, *projectPath, *pollInterval)

	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// Normal TUI exit (user pressed 'q')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		// Signal received; restore default handling so a second Ctrl+C
		// force-exits, then wait briefly for the TUI to unwind.
		stop()
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		select {
		case <-errChan:
		case <-shutdownCtx.Done():
		}
	}
}
