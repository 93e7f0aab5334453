package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FocuswithJustin/Amanuensis/core/gate"
	"github.com/FocuswithJustin/Amanuensis/core/normalize"
	"github.com/FocuswithJustin/Amanuensis/core/tei"
)

// startReviewLoop consumes escalations from the review channel on stdin
// until the channel closes. Returns a done channel; a nil review channel
// yields an already-closed one.
func startReviewLoop(ctx context.Context, reviews <-chan *gate.Request) <-chan struct{} {
	done := make(chan struct{})
	if reviews == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		runReviewLoop(ctx, reviews, os.Stdin, os.Stdout)
	}()
	return done
}

// runReviewLoop prompts for each escalated record. After "quit" (or EOF)
// the remaining requests are skipped without prompting.
func runReviewLoop(ctx context.Context, reviews <-chan *gate.Request, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	quitting := false
	for req := range reviews {
		if quitting || ctx.Err() != nil {
			req.Reply <- gate.Decision{Action: gate.ReviewSkip}
			continue
		}
		decision, quit := promptOne(scanner, out, req)
		if quit {
			quitting = true
		}
		req.Reply <- decision
	}
}

func promptOne(scanner *bufio.Scanner, out io.Writer, req *gate.Request) (gate.Decision, bool) {
	rec := req.Record
	fmt.Fprintf(out, "\n[%s] %s\n", req.DocPath, rec.Raw)
	if len(rec.Context.Before) > 0 || len(rec.Context.After) > 0 {
		fmt.Fprintf(out, "  ...%s >>%s<< %s...\n",
			strings.Join(rec.Context.Before, " "), rec.Raw, strings.Join(rec.Context.After, " "))
	}
	for i, s := range rec.Suggestions {
		fmt.Fprintf(out, "  %d. %s (%s %.2f)\n", i+1, s.Text, s.Source, s.Confidence)
	}
	fmt.Fprintf(out, "number, text, n/m/d, ` difficult, blank skip, quit: ")

	for {
		if !scanner.Scan() {
			return gate.Decision{Action: gate.ReviewSkip}, true
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			return gate.Decision{Action: gate.ReviewSkip}, false
		case "quit":
			return gate.Decision{Action: gate.ReviewSkip}, true
		case "`":
			return gate.Decision{Action: gate.ReviewDifficult}, false
		case "n", "m":
			return gate.Decision{Action: gate.ReviewAccept, Text: expandShortcut(rec, line)}, false
		case "d":
			return gate.Decision{Action: gate.ReviewAccept, Text: expandShortcut(rec, "")}, false
		}

		if idx, err := strconv.Atoi(line); err == nil {
			if idx >= 1 && idx <= len(rec.Suggestions) {
				return gate.Decision{Action: gate.ReviewAccept, Text: rec.Suggestions[idx-1].Text}, false
			}
			fmt.Fprintf(out, "no suggestion %d, try again: ", idx)
			continue
		}

		// Free text. A reading far from the abbreviation is usually a
		// typo, so it needs an explicit second keystroke.
		if dist := fuzzy.LevenshteinDistance(rec.Key, line); dist > normalize.MarkerCount(rec.Key)+1 {
			fmt.Fprintf(out, "%q is %d edits from %q, accept? (y/N): ", line, dist, rec.Key)
			if !scanner.Scan() || strings.TrimSpace(strings.ToLower(scanner.Text())) != "y" {
				fmt.Fprintf(out, "discarded, try again: ")
				continue
			}
		}
		return gate.Decision{Action: gate.ReviewAccept, Text: line}, false
	}
}

// expandShortcut applies the marker shortcuts: the abbreviation marker
// becomes "n" or "m", or is dropped entirely.
func expandShortcut(rec *tei.Abbreviation, letter string) string {
	return strings.ReplaceAll(rec.Key, normalize.Marker, letter)
}
