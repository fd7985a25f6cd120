package main

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLogLevel(t *testing.T) {
	cases := []struct {
		name    string
		verbose bool
		env     string
		want    zerolog.Level
	}{
		{name: "default", want: zerolog.InfoLevel},
		{name: "env", env: "warn", want: zerolog.WarnLevel},
		{name: "env debug", env: "debug", want: zerolog.DebugLevel},
		{name: "invalid env", env: "loud", want: zerolog.InfoLevel},
		{name: "verbose wins", verbose: true, env: "error", want: zerolog.DebugLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := logLevel(tc.verbose, tc.env); got != tc.want {
				t.Fatalf("logLevel(%v, %q) = %v, want %v", tc.verbose, tc.env, got, tc.want)
			}
		})
	}
}
