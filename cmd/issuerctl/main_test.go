package main

import (
	"strings"
	"testing"
)

func TestReadLineTrimsNewline(t *testing.T) {
	got, err := readLine(strings.NewReader("correct horse\r\nignored\n"))
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if got != "correct horse" {
		t.Fatalf("unexpected line %q", got)
	}
	if got, err := readLine(strings.NewReader("no newline")); err != nil || got != "no newline" {
		t.Fatalf("expected unterminated line, got %q %v", got, err)
	}
	if _, err := readLine(strings.NewReader("\n")); err == nil {
		t.Fatal("expected error for empty password")
	}
}
