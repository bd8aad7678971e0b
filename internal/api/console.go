// Package api provides the interactive front-ends over the use case layer
package api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/mhutchins/birdtrack/internal/usecases"
)

// ConsoleSession drives an interactive terminal session over the sighting
// use case. Commands run one at a time; each blocks until its result is
// printed, matching the single-writer model of the tracker.
type ConsoleSession struct {
	useCase *usecases.SightingUseCase
	in      io.Reader
	out     io.Writer
}

// NewConsoleSession creates a new console session reading commands from in
// and writing responses to out.
func NewConsoleSession(useCase *usecases.SightingUseCase, in io.Reader, out io.Writer) *ConsoleSession {
	return &ConsoleSession{
		useCase: useCase,
		in:      in,
		out:     out,
	}
}

const helpText = `Available commands:
  list                      - show all species
  show <species>            - show one species in detail
  seen <species> [date]     - mark as seen (date defaults to today)
  unseen <species>          - clear the seen flag
  date <species> <date>     - set the first-seen date (YYYY-MM-DD)
  notes <species> -- <text> - set the notes
  image <species>           - look up the preview image URL
  markall                   - mark ALL species as seen today
  clearall                  - clear ALL seen flags, dates and notes
  save                      - save to the CSV file
  sync                      - sync to the remote table
  export                    - print the table as CSV
  help                      - show this help
  quit                      - exit`

// Start begins reading and handling commands until quit or EOF.
func (c *ConsoleSession) Start(ctx context.Context) error {
	fmt.Fprintf(c.out, "Backyard Birds Tracker: %d species loaded. Type 'help' for commands.\n", len(c.useCase.Records()))

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		log.Printf("Handling command: %s", line)
		if quit := c.handleCommand(ctx, line); quit {
			return nil
		}
	}
	return scanner.Err()
}

// handleCommand dispatches one command line. It returns true when the
// session should end.
func (c *ConsoleSession) handleCommand(ctx context.Context, line string) bool {
	cmd, args := splitCommand(line)

	switch cmd {
	case "help":
		fmt.Fprintln(c.out, helpText)
	case "list":
		c.handleList()
	case "show":
		c.handleShow(args)
	case "seen":
		c.handleSeen(args)
	case "unseen":
		c.updateAndReport(args, "", func(species string) error {
			return c.useCase.UpdateField(species, "seen", "")
		})
	case "date":
		c.handleDate(args)
	case "notes":
		c.handleNotes(args)
	case "image":
		c.handleImage(ctx, args)
	case "markall":
		c.useCase.MarkAllSeen(time.Now().Format("2006-01-02"))
		fmt.Fprintln(c.out, "All species marked as seen today. Use 'save' to persist.")
	case "clearall":
		c.useCase.ClearAll()
		fmt.Fprintln(c.out, "All seen flags, dates and notes cleared. Use 'save' to persist.")
	case "save":
		c.handleSave()
	case "sync":
		c.handleSync(ctx)
	case "export":
		if err := c.useCase.Export(c.out); err != nil {
			fmt.Fprintf(c.out, "Export failed: %v\n", err)
		}
	case "quit", "exit":
		fmt.Fprintln(c.out, "Bye.")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command %q. Type 'help' for the command list.\n", cmd)
	}
	return false
}

func (c *ConsoleSession) handleList() {
	for _, rec := range c.useCase.Records() {
		marker := " "
		if rec.Seen {
			marker = "x"
		}
		line := fmt.Sprintf("[%s] %s", marker, rec.Species)
		if rec.FirstSeenDate != "" {
			line += fmt.Sprintf("  (first seen %s)", rec.FirstSeenDate)
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *ConsoleSession) handleShow(args string) {
	if args == "" {
		fmt.Fprintln(c.out, "Usage: show <species>")
		return
	}
	rec, err := c.useCase.Get(args)
	if err != nil {
		fmt.Fprintf(c.out, "No species %q in the list. Use 'list' to see all species.\n", args)
		return
	}
	fmt.Fprintln(c.out, usecases.FormatRecord(rec))
}

func (c *ConsoleSession) handleSeen(args string) {
	species, date, explicit := args, time.Now().Format("2006-01-02"), false
	// An explicit trailing date overrides today
	if i := strings.LastIndex(args, " "); i > 0 {
		if _, err := time.Parse("2006-01-02", args[i+1:]); err == nil {
			species, date, explicit = args[:i], args[i+1:], true
		}
	}
	if species == "" {
		fmt.Fprintln(c.out, "Usage: seen <species> [YYYY-MM-DD]")
		return
	}
	rec, err := c.useCase.Get(species)
	if err != nil {
		fmt.Fprintf(c.out, "No species %q in the list. Use 'list' to see all species.\n", species)
		return
	}
	if err := c.useCase.UpdateField(species, "seen", "yes"); err != nil {
		fmt.Fprintf(c.out, "Update failed: %v\n", err)
		return
	}
	// Without an explicit date an already-recorded first sighting stands
	if !explicit && rec.FirstSeenDate != "" {
		fmt.Fprintf(c.out, "%s marked as seen, keeping first seen %s. Use 'save' to persist.\n", species, rec.FirstSeenDate)
		return
	}
	if err := c.useCase.UpdateField(species, "first_seen_date", date); err != nil {
		fmt.Fprintf(c.out, "Could not set the date: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s marked as seen on %s. Use 'save' to persist.\n", species, date)
}

func (c *ConsoleSession) handleDate(args string) {
	i := strings.LastIndex(args, " ")
	if i <= 0 {
		fmt.Fprintln(c.out, "Usage: date <species> <YYYY-MM-DD>")
		return
	}
	c.updateAndReport(args[:i], args[i+1:], func(species string) error {
		return c.useCase.UpdateField(species, "first_seen_date", args[i+1:])
	})
}

func (c *ConsoleSession) handleNotes(args string) {
	species, text, found := strings.Cut(args, " -- ")
	if !found {
		fmt.Fprintln(c.out, "Usage: notes <species> -- <text>")
		return
	}
	c.updateAndReport(strings.TrimSpace(species), text, func(s string) error {
		return c.useCase.UpdateField(s, "notes", text)
	})
}

// updateAndReport runs one field update and prints the outcome.
func (c *ConsoleSession) updateAndReport(species, value string, update func(species string) error) {
	if species == "" {
		fmt.Fprintln(c.out, "Please name a species.")
		return
	}
	if err := update(species); err != nil {
		fmt.Fprintf(c.out, "Update failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s updated. Use 'save' to persist.\n", species)
}

func (c *ConsoleSession) handleImage(ctx context.Context, args string) {
	if args == "" {
		fmt.Fprintln(c.out, "Usage: image <species>")
		return
	}
	url, err := c.useCase.EnrichImage(ctx, args)
	if err != nil {
		fmt.Fprintf(c.out, "No species %q in the list. Use 'list' to see all species.\n", args)
		return
	}
	if url == "" {
		fmt.Fprintf(c.out, "No preview image found for %s.\n", args)
		return
	}
	fmt.Fprintf(c.out, "Preview image for %s: %s\n", args, url)
}

func (c *ConsoleSession) handleSave() {
	if err := c.useCase.SaveLocal(); err != nil {
		fmt.Fprintf(c.out, "Save failed, the previous file is intact: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Saved.")
}

func (c *ConsoleSession) handleSync(ctx context.Context) {
	result := c.useCase.SyncRemote(ctx)
	if result.Disabled {
		fmt.Fprintln(c.out, "Remote sync is disabled. Set SUPABASE_URL and SUPABASE_ANON_KEY to enable it.")
		return
	}
	fmt.Fprintf(c.out, "Synced: %d upserted, %d unchanged, %d failed.\n",
		result.Succeeded, result.Skipped, len(result.Failed))
	for _, failure := range result.Failed {
		fmt.Fprintf(c.out, "  %s: %s\n", failure.Species, failure.Reason)
	}
}

// splitCommand separates the command word from its argument string.
func splitCommand(line string) (cmd, args string) {
	cmd, args, _ = strings.Cut(line, " ")
	return strings.ToLower(cmd), strings.TrimSpace(args)
}
