package main

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/experiment"
)

func feed(lines ...string) <-chan string {
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return ch
}

func TestReplTranslatesCommands(t *testing.T) {
	commands := make(chan experiment.Command, 8)
	err := repl(context.Background(), feed("start", " D ", "", "yes", "bogus", "n", "quit", "start"), commands)
	if err != nil {
		t.Fatalf("repl: %v", err)
	}
	close(commands)

	var got []experiment.Command
	for c := range commands {
		got = append(got, c)
	}
	want := []experiment.Command{
		{Kind: experiment.CmdStart},
		{Kind: experiment.CmdCompleteTrial},
		{Kind: experiment.CmdRespond, Detected: true},
		{Kind: experiment.CmdRespond, Detected: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestReplStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered and never read: the send must give way to ctx.
	commands := make(chan experiment.Command)
	lines := make(chan string, 1)
	lines <- "start"
	if err := repl(ctx, lines, commands); err != nil {
		t.Fatalf("repl: %v", err)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("expected 01234567, got %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}
