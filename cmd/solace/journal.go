// ABOUTME: Journal REPL for branches and memories with live autosave.
// ABOUTME: Draft edits persist in the background as the user types.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/solace-app/solace-core/internal/journal"
	"github.com/solace-app/solace-core/internal/store"
)

func runJournal(ctx context.Context) error {
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

	svc := journal.NewService(st, journal.Config{
		OwnerEmail:    email,
		AutosaveDelay: cfg.Autosave.Delay,
		MinMeaningful: cfg.Autosave.MinMeaningful,
		Metrics:       maybeMetrics(cfg),
	})
	defer svc.Close()

	gray := color.New(color.FgHiBlack)
	fmt.Printf("solace journal — %s\n", email)
	gray.Println("/help for commands. Ctrl+C to quit.")
	fmt.Println()

	repl := &journalREPL{svc: svc}
	scanner := bufio.NewScanner(os.Stdin)

	for {
		repl.printPrompt()

		input, ok := readLine(ctx, scanner)
		if !ok {
			fmt.Println()
			return repl.closeDraft()
		}

		quit, err := repl.handle(ctx, input)
		if err != nil {
			color.Red("[error] %v", err)
		}
		if quit {
			return repl.closeDraft()
		}
	}
}

// journalREPL holds the REPL's branch selection and open draft.
type journalREPL struct {
	svc    *journal.Service
	branch *store.Branch
	draft  *journal.Draft
	lines  []string
}

func (r *journalREPL) printPrompt() {
	switch {
	case r.draft != nil:
		fmt.Printf("[%s %s] ", r.branch.Name, r.draft.Status())
	case r.branch != nil:
		fmt.Printf("[%s]> ", r.branch.Name)
	default:
		fmt.Print("> ")
	}
}

// handle processes one line of input. Inside a draft, plain lines are
// appended to the memory text; elsewhere they are ignored.
func (r *journalREPL) handle(ctx context.Context, input string) (quit bool, err error) {
	trimmed := strings.TrimSpace(input)

	if r.draft != nil && !strings.HasPrefix(trimmed, "/") {
		r.lines = append(r.lines, input)
		r.draft.SetText(strings.Join(r.lines, "\n"))
		return false, nil
	}

	switch {
	case trimmed == "":
		return false, nil

	case trimmed == "/quit" || trimmed == "/exit" || trimmed == "/q":
		return true, nil

	case trimmed == "/help":
		printJournalHelp()
		return false, nil

	case trimmed == "/branches":
		return false, r.listBranches(ctx)

	case strings.HasPrefix(trimmed, "/branch "):
		return false, r.createBranch(ctx, strings.TrimPrefix(trimmed, "/branch "))

	case strings.HasPrefix(trimmed, "/open "):
		return false, r.openBranch(ctx, strings.TrimSpace(strings.TrimPrefix(trimmed, "/open ")))

	case trimmed == "/memories":
		return false, r.listMemories(ctx)

	case strings.HasPrefix(trimmed, "/rm "):
		return false, r.deleteMemory(ctx, strings.TrimSpace(strings.TrimPrefix(trimmed, "/rm ")))

	case trimmed == "/write":
		if r.branch == nil {
			return false, fmt.Errorf("no branch open: use /open <id> first")
		}
		if err := r.closeDraft(); err != nil {
			return false, err
		}
		r.draft = r.svc.NewDraft(r.branch.ID)
		r.lines = nil
		fmt.Println("New memory. Type lines; /done to finish.")
		return false, nil

	case trimmed == "/done":
		if r.draft == nil {
			return false, fmt.Errorf("no open draft")
		}
		return false, r.closeDraft()

	default:
		return false, fmt.Errorf("unknown command: %s", trimmed)
	}
}

// closeDraft flushes and drops the open draft, if any.
func (r *journalREPL) closeDraft() error {
	if r.draft == nil {
		return nil
	}
	err := r.draft.Cancel()
	if err == nil && r.draft.MemoryID() != "" {
		color.New(color.FgGreen).Printf("  ✓ Saved memory %s\n", r.draft.MemoryID())
	}
	r.draft = nil
	r.lines = nil
	return err
}

func (r *journalREPL) listBranches(ctx context.Context) error {
	branches, err := r.svc.ListBranches(ctx)
	if err != nil {
		return err
	}
	if len(branches) == 0 {
		fmt.Println("No branches yet. Create one with /branch <name>.")
		return nil
	}
	for _, b := range branches {
		fmt.Printf("  %s  %s\n", b.ID, b.Name)
	}
	return nil
}

func (r *journalREPL) createBranch(ctx context.Context, name string) error {
	branch, err := r.svc.CreateBranch(ctx, name)
	if err != nil {
		return err
	}
	r.branch = branch
	fmt.Printf("Created and opened branch %s\n", branch.Name)
	return nil
}

func (r *journalREPL) openBranch(ctx context.Context, id string) error {
	branches, err := r.svc.ListBranches(ctx)
	if err != nil {
		return err
	}
	for _, b := range branches {
		if b.ID == id || b.Name == id {
			r.branch = b
			fmt.Printf("Opened branch %s\n", b.Name)
			return nil
		}
	}
	return fmt.Errorf("no branch %q", id)
}

func (r *journalREPL) listMemories(ctx context.Context) error {
	if r.branch == nil {
		return fmt.Errorf("no branch open: use /open <id> first")
	}
	memories, err := r.svc.ListMemories(ctx, r.branch.ID)
	if err != nil {
		return err
	}
	if len(memories) == 0 {
		fmt.Println("No memories in this branch")
		return nil
	}
	for _, m := range memories {
		first := m.Content
		if i := strings.IndexByte(first, '\n'); i >= 0 {
			first = first[:i]
		}
		fmt.Printf("  %s  %s\n", m.ID, truncate(first, 60))
	}
	return nil
}

func (r *journalREPL) deleteMemory(ctx context.Context, id string) error {
	deleted, err := r.svc.DeleteMemory(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("no memory %q", id)
	}
	fmt.Println("Deleted")
	return nil
}

func printJournalHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /branches        List branches")
	fmt.Println("  /branch <name>   Create a branch and open it")
	fmt.Println("  /open <id>       Open a branch by id or name")
	fmt.Println("  /memories        List memories in the open branch")
	fmt.Println("  /write           Start a new memory (lines autosave)")
	fmt.Println("  /done            Finish the open memory")
	fmt.Println("  /rm <id>         Delete a memory")
	fmt.Println("  /help            Show this help")
	fmt.Println("  /quit            Exit the journal")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
