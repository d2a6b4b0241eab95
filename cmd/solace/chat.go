// ABOUTME: Interactive chat REPL over the conversation controller.
// ABOUTME: Renders transcript entries and handles session rollover.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/solace-app/solace-core/internal/conversation"
	"github.com/solace-app/solace-core/internal/inference"
	"github.com/solace-app/solace-core/internal/store"
)

func runChat(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	mgr, email, err := requireSignIn(ctx, st, cfg)
	if err != nil {
		return err
	}
	defer mgr.Close()

	metrics := maybeMetrics(cfg)
	infer := inference.NewClient(cfg.Gateway.InferenceURL, cfg.Gateway.RequestTimeout)
	ctrl := conversation.New(st, infer, metrics)

	if err := ctrl.Hydrate(ctx, email); err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	gray := color.New(color.FgHiBlack)
	fmt.Printf("solace chat — session %d\n", ctrl.SessionNumber())
	gray.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	for _, msg := range ctrl.Transcript() {
		renderMessage(msg)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")

		input, ok := readLine(ctx, scanner)
		if !ok {
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil

		case input == "/help":
			printChatHelp()
			fmt.Println()
			continue

		case input == "/session":
			fmt.Printf("Session %d (%s)\n\n", ctrl.SessionNumber(), ctrl.SessionID())
			continue

		case input == "/history":
			for _, msg := range ctrl.Transcript() {
				renderMessage(msg)
			}
			fmt.Println()
			continue

		case input == "/evolve" || input == "/new":
			if _, err := ctrl.IncrementSession(ctx); err != nil {
				color.Red("[error] %v", err)
			} else {
				fmt.Printf("Started session %d\n", ctrl.SessionNumber())
			}
			fmt.Println()
			continue
		}

		before := len(ctrl.Transcript())
		ctrl.SendMessage(ctx, input)

		// Render everything the exchange appended past the user's own
		// line, which was echoed by the terminal already.
		transcript := ctrl.Transcript()
		for _, msg := range transcript[min(before+1, len(transcript)):] {
			renderMessage(msg)
		}
		fmt.Println()
	}
}

func printChatHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /session       Show the active session")
	fmt.Println("  /history       Reprint the transcript")
	fmt.Println("  /evolve        Archive this session and start the next")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit the chat")
}

func renderMessage(msg conversation.Message) {
	switch msg.Role {
	case conversation.RoleUser:
		color.New(color.FgBlue).Printf("you> ")
		fmt.Println(msg.Content)
	case conversation.RoleAssistant:
		color.New(color.FgGreen).Printf("sol> ")
		fmt.Println(msg.Content)
	case conversation.RoleError:
		color.Red("[error] %s", msg.Content)
	case conversation.RoleEvolve:
		color.Yellow("%s", msg.Content)
	case conversation.RoleTyping:
		// Transient placeholder, never rendered line-by-line.
	}
}
