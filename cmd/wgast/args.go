package main

import (
	"fmt"
	"log/slog"
	"strings"
)

type cliArgs struct {
	ConfigPath string
	Stage      string
	LogLevel   slog.Level
}

// parseArgs accepts --name=value and --name value for --config, --stage and --log-level.
func parseArgs(args []string) (cliArgs, error) {
	parsed := cliArgs{ConfigPath: "wgast.yaml", LogLevel: slog.LevelInfo}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "--") {
			return parsed, fmt.Errorf("unexpected argument %q", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return parsed, fmt.Errorf("missing value for --%s", name)
			}
			i++
			value = args[i]
		}

		switch name {
		case "config":
			parsed.ConfigPath = value
		case "stage":
			parsed.Stage = value
		case "log-level":
			if err := parsed.LogLevel.UnmarshalText([]byte(value)); err != nil {
				return parsed, fmt.Errorf("invalid log level %q", value)
			}
		default:
			return parsed, fmt.Errorf("unknown flag --%s", name)
		}
	}
	return parsed, nil
}
