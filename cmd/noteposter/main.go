// Command noteposter turns a markdown note into an illustrative poster:
// it derives an image prompt from the note via a text model, generates a
// bitmap via an image model, saves it under the attachment folder, and
// embeds a reference back into the note.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"noteposter/core"
	"noteposter/logging"
	"noteposter/orchestrator"
	"noteposter/vault"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		vaultRoot   = flag.String("vault", ".", "vault root directory")
		notePath    = flag.String("note", "", "vault-relative path of the note to illustrate")
		provider    = flag.String("provider", "", "provider override: openai, google, anthropic, xai")
		style       = flag.String("style", "", "style override: infographic, poster, diagram, mindmap, timeline, cartoon")
		size        = flag.String("size", "", "size override: 1K, 2K, 4K")
		cartoonCuts = flag.String("cartoon-cuts", "4", "cartoon panel count selector (number or 'custom')")
		customCuts  = flag.Int("custom-cuts", 4, "panel count when -cartoon-cuts=custom")
		promptOnly  = flag.Bool("prompt-only", false, "generate and print the prompt without an image")
		regenerate  = flag.Bool("regenerate", false, "regenerate the poster from the last cached prompt")
		noPreview   = flag.Bool("no-preview", false, "skip the prompt preview gate")
	)
	flag.Parse()

	cfg := core.LoadConfig()

	log, err := logging.NewLogger(cfg.Development, cfg.LogFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return 1
	}
	defer log.Sync()

	settings, err := core.LoadSettings(cfg.SettingsPath)
	if err != nil {
		log.Error("failed to load settings", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *provider != "" {
		settings.Provider = core.ProviderID(*provider)
	}
	if *noPreview {
		settings.ShowPreview = false
	}

	v, err := vault.NewFSVault(*vaultRoot)
	if err != nil {
		log.Error("failed to open vault", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Vault:      v,
		Writer:     vault.NewWriter(v, log),
		Settings:   settings,
		Session:    core.NewSession(),
		Logger:     log,
		HTTPClient: core.GetHTTPClient(cfg),
		Options: &consoleOptions{
			style:       core.Style(*style),
			size:        core.Size(*size),
			cartoonCuts: *cartoonCuts,
			customCuts:  *customCuts,
		},
		Preview:  newConsolePreview(os.Stdin, os.Stdout),
		Progress: &consoleProgress{out: os.Stdout},
		Notifier: &consoleNotifier{out: os.Stdout},
		Clipboard: func(prompt string) error {
			// The CLI's clipboard capability is stdout.
			_, err := fmt.Println(prompt)
			return err
		},
	})
	if err != nil {
		log.Error("failed to build orchestrator", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *regenerate:
		_, err = orch.RegenerateLast(ctx)
	case *promptOnly:
		if *notePath == "" {
			fmt.Fprintln(os.Stderr, "-note is required")
			return 2
		}
		_, err = orch.GeneratePromptOnly(ctx, *notePath)
	default:
		if *notePath == "" {
			fmt.Fprintln(os.Stderr, "-note is required")
			return 2
		}
		_, err = orch.Generate(ctx, *notePath)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, orchestrator.ErrCanceled):
		return 0
	default:
		return 1
	}
}
