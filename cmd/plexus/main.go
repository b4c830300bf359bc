// Command plexus is the plexus CLI client: list/activations/schema/help
// modes plus generic "namespace.method [params]" dispatch, grounded on
// original_source/src/bin/hub-cli.rs's five command modes and exit-code
// contract (0 success, 1 dispatch error, 2 parse error), built with
// github.com/spf13/cobra for flag parsing in place of hub-cli.rs's manual
// argv walk.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plexuscore/plexus/activations/arbor"
	"github.com/plexuscore/plexus/activations/echo"
	"github.com/plexuscore/plexus/activations/health"
	"github.com/plexuscore/plexus/plexus"
	"github.com/plexuscore/plexus/streamitem"
	"github.com/plexuscore/plexus/telemetry"
)

const (
	exitSuccess      = 0
	exitDispatchFail = 1
	exitParseFail    = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := &cobra.Command{
		Use:   "plexus",
		Short: "Inspect and call methods on an in-process plexus",
		Long: `plexus builds the same activation set plexusd serves and dispatches a
single call against it, printing every streamed item as pretty JSON.

Commands:
  list                     List all available methods
  activations              List all activations with descriptions
  help <method>            Get help for a specific method
  schema <namespace>       Get enriched schema for an activation
  <method> [params...]     Call a method

Method call formats:
  1. JSON string:       plexus health.check '{"key": "value"}'
  2. Flag-style params: plexus arbor.create_tree --owner_id claude
  3. Simple string:     plexus plexus_activation_schema health

Pass --config <path> anywhere to load method aliases from a plexus.yaml file.`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, rawArgs []string) error {
			return dispatch(cmd.Context(), rawArgs)
		},
	}

	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return exitSuccess
	}
	if ce, ok := err.(*cliError); ok {
		fmt.Fprintln(os.Stderr, ce.Error())
		return ce.code
	}
	fmt.Fprintln(os.Stderr, err)
	return exitDispatchFail
}

// cliError carries hub-cli.rs's distinction between "the plexus rejected the
// call" (exit 1) and "the CLI invocation itself was malformed" (exit 2).
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }

func parseFail(format string, a ...any) error {
	return &cliError{code: exitParseFail, err: fmt.Errorf(format, a...)}
}

func dispatchFail(format string, a ...any) error {
	return &cliError{code: exitDispatchFail, err: fmt.Errorf(format, a...)}
}

func buildPlexus(ctx context.Context) (*plexus.Plexus, error) {
	return plexus.Build(ctx, plexus.Options{Logger: telemetry.NewNoopLogger()},
		health.New(),
		echo.New(),
		arbor.New(),
	)
}

func dispatch(ctx context.Context, args []string) error {
	// --config may appear anywhere in the argument list since
	// DisableFlagParsing hands us the raw argv; scrub it out by hand rather
	// than reintroducing cobra's flag parser into a grammar built around
	// dynamic method names.
	args, configPath := extractConfigFlag(args)
	cfg, err := loadConfig(configPath)
	if err != nil {
		return parseFail("load config: %v", err)
	}

	p, err := buildPlexus(ctx)
	if err != nil {
		return dispatchFail("build plexus: %v", err)
	}

	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "list":
		for _, method := range p.ListMethods() {
			if help, ok := p.GetMethodHelp(method); ok {
				fmt.Printf("  %s - %s\n", method, firstLine(help))
			} else {
				fmt.Printf("  %s\n", method)
			}
		}
		return nil

	case "activations":
		for _, info := range p.ListActivations() {
			fmt.Printf("\n  %s (v%s)\n", info.Namespace, info.Version)
			fmt.Printf("    %s\n", info.Description)
			fmt.Printf("    Methods: %s\n", strings.Join(info.Methods, ", "))
		}
		return nil

	case "help":
		if len(args) < 2 {
			return parseFail("usage: plexus help <method>")
		}
		method := args[1]
		if help, ok := p.GetMethodHelp(method); ok {
			fmt.Printf("Help for %s:\n\n%s\n", method, help)
		} else {
			fmt.Printf("No help available for method: %s\n", method)
		}
		return nil

	case "schema":
		if len(args) < 2 {
			fmt.Println("usage: plexus schema <namespace>")
			fmt.Println("\nAvailable namespaces:")
			for _, info := range p.ListActivations() {
				fmt.Printf("  %s\n", info.Namespace)
			}
			return parseFail("missing namespace argument")
		}
		namespace := args[1]
		enriched, ok := p.GetActivationSchema(namespace)
		if !ok {
			return dispatchFail("activation not found: %s", namespace)
		}
		out, err := json.MarshalIndent(enriched, "", "  ")
		if err != nil {
			return dispatchFail("marshal schema: %v", err)
		}
		fmt.Printf("Schema for %s:\n\n%s\n", namespace, out)
		return nil

	default:
		return callMethod(ctx, p, cfg.resolve(args[0]), args[1:])
	}
}

func extractConfigFlag(args []string) ([]string, string) {
	out := make([]string, 0, len(args))
	configPath := ""
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(args[i], "--config=") {
			configPath = strings.TrimPrefix(args[i], "--config=")
			continue
		}
		out = append(out, args[i])
	}
	return out, configPath
}

func callMethod(ctx context.Context, p *plexus.Plexus, method string, rest []string) error {
	params, err := buildParams(rest)
	if err != nil {
		return parseFail("build params for %s: %v", method, err)
	}

	fmt.Printf("Calling: %s with params: %s\n---\n", method, params)

	stream := p.Call(ctx, method, params)
	var sawError bool
	for item := range stream {
		out, err := json.MarshalIndent(item, "", "  ")
		if err != nil {
			return dispatchFail("marshal stream item: %v", err)
		}
		fmt.Println(string(out))
		if item.Event.Kind == streamitem.KindError || item.Event.Kind == streamitem.KindGuidance {
			sawError = true
		}
	}

	fmt.Println("---\nStream complete")
	if sawError {
		return dispatchFail("%s: plexus reported a terminal error", method)
	}
	return nil
}

// buildParams mirrors hub-cli.rs's three accepted forms: --key value flag
// pairs, a bare JSON document, or a plain string treated as a single JSON
// string value.
func buildParams(args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return json.RawMessage("null"), nil
	}
	if strings.HasPrefix(args[0], "--") {
		m := map[string]any{}
		i := 0
		for i < len(args) {
			if !strings.HasPrefix(args[i], "--") {
				i++
				continue
			}
			key := strings.TrimPrefix(args[i], "--")
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				m[key] = coerceValue(args[i+1])
				i += 2
			} else {
				m[key] = true
				i++
			}
		}
		return json.Marshal(m)
	}

	var probe json.RawMessage
	if err := json.Unmarshal([]byte(args[0]), &probe); err == nil {
		return probe, nil
	}
	return json.Marshal(args[0])
}

func coerceValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func printUsage() {
	fmt.Println(`Usage: plexus <command> [args...]

Commands:
  list                     List all available methods
  activations              List all activations with descriptions
  help <method>            Get help for a specific method
  schema <namespace>       Get enriched schema for an activation
  <method> [params...]     Call a method`)
}
