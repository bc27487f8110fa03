package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	CommandServe = "serve"
	CommandCheck = "check"
)

// CLIArgs are the command-line arguments of a single netmon invocation.
type CLIArgs struct {
	// Command is "serve" (default) or "check".
	Command string

	// ConfigPath is an optional YAML config file.
	ConfigPath string

	// EnvFiles are dotenv files read before the process environment.
	EnvFiles []string

	// ListenAddr overrides server.listen_addr for serve.
	ListenAddr string

	// Scenarios limits check to the named scenarios; empty runs all.
	Scenarios []string

	// BaseURL points check at an already running fixture server.
	BaseURL string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Flags may appear
// before or after the command. The function does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("netmon", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "YAML config file")
		envFiles   = fs.String("env", "", "comma separated dotenv files (default ./.env when present)")
		addr       = fs.String("addr", "", "API listen address for serve")
		scenarios  = fs.String("scenario", "", "comma separated scenarios for check (default all)")
		baseURL    = fs.String("base-url", "", "fixture server base URL for check (default in-process)")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	command := CommandServe
	if rest := fs.Args(); len(rest) > 0 {
		command = rest[0]
		if err := fs.Parse(rest[1:]); err != nil {
			return nil, err
		}
		if extra := fs.Args(); len(extra) > 0 {
			return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(extra, " "))
		}
	}

	switch command {
	case CommandServe, CommandCheck:
	default:
		return nil, fmt.Errorf("unknown command %q (want serve or check)", command)
	}
	if command != CommandCheck && (*scenarios != "" || *baseURL != "") {
		return nil, fmt.Errorf("-scenario and -base-url only apply to check")
	}

	return &CLIArgs{
		Command:    command,
		ConfigPath: *configPath,
		EnvFiles:   splitList(*envFiles),
		ListenAddr: *addr,
		Scenarios:  splitList(*scenarios),
		BaseURL:    *baseURL,
		RawArgs:    args,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
