package process

import (
	"context"
	"testing"

	"github.com/Gliksbot/gliksbot/collab"
)

const echoSkillSource = `package main

func echo(message string) string {
	return "echo:" + message
}
`

const sleepSkillSource = `package main

import "time"

func slow(message string) string {
	time.Sleep(5 * time.Second)
	return message
}
`

const emptySkillSource = `package main

func blank(message string) string {
	return ""
}
`

func TestRunReturnsOKOnZeroExitWithStdout(t *testing.T) {
	r := New("")
	result, err := r.Run(context.Background(), echoSkillSource, "echo", "hello", collab.SandboxLimits{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.OK {
		t.Fatalf("got ok=false, stdout=%q stderr=%q exit=%d", result.Stdout, result.Stderr, result.ExitCode)
	}
	if result.Stdout != "echo:hello" {
		t.Fatalf("got stdout=%q want %q", result.Stdout, "echo:hello")
	}
	if result.ExitCode != 0 {
		t.Fatalf("got exit=%d want 0", result.ExitCode)
	}
}

func TestRunReportsNotOKOnEmptyStdout(t *testing.T) {
	r := New("")
	result, err := r.Run(context.Background(), emptySkillSource, "blank", "hi", collab.SandboxLimits{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.OK {
		t.Fatal("expected ok=false for a skill producing no stdout")
	}
}

func TestRunKillsOnTimeoutAndReportsExitCode124(t *testing.T) {
	r := New("")
	limits := collab.SandboxLimits{Timeout: 1}
	result, err := r.Run(context.Background(), sleepSkillSource, "slow", "hi", limits)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ExitCode != 124 {
		t.Fatalf("got exit=%d want 124", result.ExitCode)
	}
	if result.OK {
		t.Fatal("expected ok=false on timeout")
	}
}

func TestRunTruncatesStdoutAtConfiguredCap(t *testing.T) {
	r := New("")
	limits := collab.SandboxLimits{MaxStdoutKiB: 1}
	longMessage := ""
	for i := 0; i < 2000; i++ {
		longMessage += "x"
	}
	result, err := r.Run(context.Background(), echoSkillSource, "echo", longMessage, limits)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Stdout) > 1024+len("\n...[truncated]") {
		t.Fatalf("stdout not capped, len=%d", len(result.Stdout))
	}
}

func TestRunHonorsCallerCancellation(t *testing.T) {
	r := New("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := r.Run(ctx, sleepSkillSource, "slow", "hi", collab.SandboxLimits{Timeout: 30})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.OK {
		t.Fatal("expected ok=false when the caller context is already canceled")
	}
}
