// Command hookrunner is the binary bind-mounted into every one-shot
// execution container and run as its command. It reads the ENGINE_* environment
// variables set by internal/containerdriver and runs the three-phase
// hook sequence (internal/hookrunner), exiting with the main
// program's exit code.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	cfg := configFromEnv()
	code, err := run(context.Background(), cfg)
	if err != nil && code == 0 {
		code = 1
	}
	os.Exit(code)
}

func configFromEnv() envConfig {
	params, err := splitParams(os.Getenv("ENGINE_STATIC_PARAMS"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hookrunner: ENGINE_STATIC_PARAMS: %v\n", err)
	}
	return envConfig{
		WorkDir:      getenvDefault("ENGINE_WORKDIR", "/workspace"),
		MainFile:     os.Getenv("ENGINE_MAIN_FILE"),
		StaticParams: params,
		HooksDir:     os.Getenv("ENGINE_HOOKS_DIR"),
	}
}

type envConfig struct {
	WorkDir      string
	MainFile     string
	StaticParams []string
	HooksDir     string
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitParams tokenizes the catalog-declared static parameter string
// the way a shell would: whitespace separates arguments, and single
// or double quotes let one argument contain embedded whitespace
// (e.g. `--name "jane doe" --verbose` becomes ["--name", "jane doe",
// "--verbose"]), so a quoted multi-word value survives the env var
// round trip intact instead of being split on every space.
func splitParams(s string) ([]string, error) {
	var args []string
	var cur []rune
	hasToken := false
	var quote rune

	flush := func() {
		if hasToken {
			args = append(args, string(cur))
		}
		cur = cur[:0]
		hasToken = false
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur = append(cur, r)
		case r == '\'' || r == '"':
			quote = r
			hasToken = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur = append(cur, r)
			hasToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	flush()
	return args, nil
}
