package cli

import (
	"reflect"
	"testing"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
		want CLIArgs
	}{
		{
			name: "defaults to serve",
			args: nil,
			want: CLIArgs{Command: CommandServe},
		},
		{
			name: "serve with flags before the command",
			args: []string{"-config", "netmon.yaml", "-addr", ":9000", "serve"},
			want: CLIArgs{Command: CommandServe, ConfigPath: "netmon.yaml", ListenAddr: ":9000"},
		},
		{
			name: "check with flags after the command",
			args: []string{"check", "-scenario", "beacon-capture, redirect-security-icon", "-env", "a.env,b.env"},
			want: CLIArgs{
				Command:   CommandCheck,
				Scenarios: []string{"beacon-capture", "redirect-security-icon"},
				EnvFiles:  []string{"a.env", "b.env"},
			},
		},
		{
			name: "check against a running fixture server",
			args: []string{"-base-url", "http://localhost:8888", "check"},
			want: CLIArgs{Command: CommandCheck, BaseURL: "http://localhost:8888"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("ParseArgs: %v", err)
			}
			tt.want.RawArgs = tt.args
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{
		{"crawl"},
		{"-nope"},
		{"check", "extra"},
		{"serve", "-scenario", "beacon-capture"},
	} {
		if _, err := ParseArgs(args); err == nil {
			t.Errorf("ParseArgs(%q): expected error", args)
		}
	}
}
