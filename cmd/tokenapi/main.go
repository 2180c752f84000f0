package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/goliatone/go-tokenapi/adapters/gologger"
	"github.com/goliatone/go-tokenapi/core"
	"github.com/goliatone/go-tokenapi/query"
	"github.com/goliatone/go-tokenapi/transport"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr, os.LookupEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

// app is built per command invocation and torn down after it.
type app struct {
	service *core.Service
	logger  core.Logger
	close   func() error
}

func newRootCommand(stdout, stderr io.Writer, lookup func(string) (string, bool)) *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:          "tokenapi",
		Short:        "Call token-authenticated HTTP APIs and manage the stored credential",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "tokenapi.yaml", "YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(newCallCommand(opts, lookup), newTokenCommand(opts, lookup))
	return root
}

func buildApp(ctx context.Context, cmd *cobra.Command, opts *cliOptions, lookup func(string) (string, bool)) (*app, error) {
	if path := strings.TrimSpace(opts.envFile); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("tokenapi: load env file %s: %w", path, err)
		}
	}
	cfg, err := loadFileConfig(opts.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := newCLILogger(cmd.ErrOrStderr(), opts.verbose)
	store, closeStore, err := openCredentialStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rest := transport.NewRESTAdapter(&http.Client{Timeout: cfg.timeout()})
	rest.BaseURL = cfg.Transport.BaseURL
	if cfg.Transport.MaxResponseBodyBytes > 0 {
		rest.MaxResponseBodyBytes = cfg.Transport.MaxResponseBodyBytes
	}

	serviceOpts := gologger.ServiceOptions("", nil, logger)
	serviceOpts = append(serviceOpts,
		core.WithTransport(rest),
		core.WithCredentialStore(store),
	)
	if refresh := cfg.refreshAction(); refresh != nil {
		serviceOpts = append(serviceOpts, core.WithRefreshAction(refresh))
	}
	svc, err := core.NewService(cfg.serviceConfig(), serviceOpts...)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	return &app{service: svc, logger: logger, close: closeStore}, nil
}

type callOptions struct {
	kind    string
	method  string
	headers []string
	body    string
	noAuth  bool
	batch   bool
	events  bool
}

func newCallCommand(opts *cliOptions, lookup func(string) (string, bool)) *cobra.Command {
	callOpts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call ENDPOINT [ENDPOINT...]",
		Short: "Dispatch a request, or a batch when more than one endpoint is given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := callOpts.action(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			application, err := buildApp(ctx, cmd, opts, lookup)
			if err != nil {
				return err
			}
			defer application.close()

			var sink core.EventSink
			if callOpts.events {
				sink = eventPrinter(cmd.ErrOrStderr())
			}
			value, err := application.service.Call(ctx, action, sink)
			if err != nil {
				return err
			}
			if valueErr, ok := value.(error); ok {
				return valueErr
			}
			return printValue(cmd.OutOrStdout(), value)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&callOpts.kind, "kind", "CALL", "action kind used for lifecycle events")
	flags.StringVarP(&callOpts.method, "method", "X", "", "HTTP method (default GET)")
	flags.StringArrayVarP(&callOpts.headers, "header", "H", nil, "request header as Name: value")
	flags.StringVarP(&callOpts.body, "data", "d", "", "request body")
	flags.BoolVar(&callOpts.noAuth, "no-auth", false, "do not attach the stored credential")
	flags.BoolVar(&callOpts.batch, "batch", false, "dispatch as a batch even with one endpoint")
	flags.BoolVar(&callOpts.events, "events", false, "print lifecycle events to stderr")
	return cmd
}

func (o *callOptions) action(endpoints []string) (core.Action, error) {
	headers, err := parseHeaders(o.headers)
	if err != nil {
		return core.Action{}, err
	}
	items := make([]core.RequestDescription, 0, len(endpoints))
	for _, endpoint := range endpoints {
		desc := core.RequestDescription{
			Endpoint: endpoint,
			Method:   strings.ToUpper(strings.TrimSpace(o.method)),
			Headers:  headers,
		}
		if o.body != "" {
			desc.Body = []byte(o.body)
		}
		items = append(items, desc)
	}
	payload := core.SinglePayload(items[0])
	if o.batch || len(items) > 1 {
		payload = core.BatchPayload(items...)
	}
	return core.Action{
		Kind:    strings.TrimSpace(o.kind),
		Payload: payload,
		Meta:    core.Metadata{Authenticate: core.Authenticate(!o.noAuth)},
	}, nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, entry := range raw {
		name, value, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("tokenapi: header %q must be Name: value", entry)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func newTokenCommand(opts *cliOptions, lookup func(string) (string, bool)) *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored credential",
	}

	withApp := func(run func(ctx context.Context, cmd *cobra.Command, application *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			application, err := buildApp(ctx, cmd, opts, lookup)
			if err != nil {
				return err
			}
			defer application.close()
			return run(ctx, cmd, application, args)
		}
	}

	set := &cobra.Command{
		Use:   "set CREDENTIAL",
		Short: "Store a credential",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, application *app, args []string) error {
			if err := application.service.StoreCredential(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stored")
			return nil
		}),
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Report whether a credential is stored and when it expires",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, application *app, _ []string) error {
			status, err := query.NewCredentialStatusQuery(application.service).Query(ctx, query.CredentialStatusMessage{})
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), status)
		}),
	}
	remove := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored credential",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, application *app, _ []string) error {
			if err := application.service.RemoveCredential(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed")
			return nil
		}),
	}
	token.AddCommand(set, show, remove)
	return token
}

func eventPrinter(w io.Writer) core.EventSink {
	return core.SinkFunc(func(_ context.Context, event core.LifecycleEvent) {
		if event.Meta.Error {
			fmt.Fprintf(w, "%s: %v\n", event.Kind, event.Payload)
			return
		}
		fmt.Fprintln(w, event.Kind)
	})
}

func printValue(w io.Writer, value any) error {
	if text, ok := value.(string); ok {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenapi: encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(encoded))
	return err
}
