package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestArgv0Alias(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "noctrace-mock", want: "mock-orchestrator"},
		{base: "mock-orchestrator", want: "mock-orchestrator"},
		{base: "noctrace-serve.exe", want: "serve"},
		{base: "noc-investigate", want: "investigate"},
		{base: "noctrace", want: ""},
	}
	for _, tc := range tests {
		got := strings.Join(argv0Alias(tc.base), " ")
		if got != tc.want {
			t.Fatalf("argv0Alias(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestApplyArgv0Alias(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "empty", args: nil, want: nil},
		{name: "no-alias", args: []string{"noctrace", "serve"}, want: []string{"noctrace", "serve"}},
		{name: "mock", args: []string{"/usr/bin/noctrace-mock", "--addr", ":9000"}, want: []string{"/usr/bin/noctrace-mock", "mock-orchestrator", "--addr", ":9000"}},
		{name: "already-named", args: []string{"mock-orchestrator", "mock-orchestrator", "--scenario", "slow"}, want: []string{"mock-orchestrator", "mock-orchestrator", "--scenario", "slow"}},
		{name: "investigate", args: []string{"noc-investigate", "core-sw-01 down"}, want: []string{"noc-investigate", "investigate", "core-sw-01 down"}},
	}
	for _, tc := range tests {
		got := applyArgv0Alias(tc.args)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("%s: applyArgv0Alias = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: exitOK},
		{err: errors.New("no alert provided"), want: exitUsage},
		{err: fmt.Errorf("%w: Gateway timeout: splunk", errInvestigationFailed), want: exitFailed},
		{err: errInvestigationCancelled, want: exitCancelled},
	}
	for _, tc := range tests {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"investigate": false, "serve": false, "mock-orchestrator": false, "config": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}
