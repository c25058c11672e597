package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/logscout/internal/app"
	"github.com/ricesearch/logscout/internal/bus"
	"github.com/ricesearch/logscout/internal/config"
	"github.com/ricesearch/logscout/internal/pipeline"
	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/pkg/security"
	"github.com/ricesearch/logscout/internal/query"
	"github.com/ricesearch/logscout/internal/schema"
	"github.com/ricesearch/logscout/internal/server"
)

// loadConfig reads the config file and sets up the logger. --verbose forces
// debug level.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return cfg, logger.New(level, cfg.Log.Format), nil
}

func buildApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, log)
}

// commandContext is canceled on interrupt and after the --timeout flag, if set.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("format")
	return format == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r *pipeline.Report) {
	if r.Spec.Index != "" {
		fmt.Fprintf(w, "# %s in %s, %s .. %s\n\n", r.Spec.IP, r.Spec.Index,
			r.Start.Format(query.LayoutDateTime), r.End.Format(query.LayoutDateTime))
	}
	fmt.Fprintln(w, r.Summary)
	if r.Result != nil && r.Result.Truncated() {
		fmt.Fprintf(w, "\n(%d of %d matching records shown)\n", r.Result.HitCount, r.Result.Total)
	}
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question> [question...]",
		Short: "Answer one or more questions about an IP",
		Long: `Resolve each question to the most relevant log source, extract the IP and
time range, retrieve the matching records and print a summary.

Several questions are answered concurrently; one failing does not stop the rest.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := buildApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				report, err := a.Orchestrator.Ask(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(out, report)
				}
				printReport(out, report)
				return nil
			}

			answers, err := a.Orchestrator.AskAll(ctx, args)
			if err != nil {
				return err
			}
			return printAnswers(cmd, out, answers)
		},
	}
	cmd.Flags().Duration("timeout", 2*time.Minute, "overall timeout (0 = none)")
	return cmd
}

func printAnswers(cmd *cobra.Command, out io.Writer, answers []pipeline.Answer) error {
	failed := 0
	if jsonOutput(cmd) {
		type answer struct {
			Question string           `json:"question"`
			Report   *pipeline.Report `json:"report,omitempty"`
			Error    string           `json:"error,omitempty"`
		}
		rows := make([]answer, len(answers))
		for i, a := range answers {
			rows[i] = answer{Question: a.Question, Report: a.Report}
			if a.Err != nil {
				rows[i].Error = a.Err.Error()
				failed++
			}
		}
		if err := printJSON(out, rows); err != nil {
			return err
		}
	} else {
		for i, a := range answers {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "## %s\n\n", a.Question)
			if a.Err != nil {
				fmt.Fprintf(out, "error: %v\n", a.Err)
				failed++
				continue
			}
			printReport(out, a.Report)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(answers))
	}
	return nil
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <question>",
		Short: "Show the log sources most relevant to a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			topK, _ := cmd.Flags().GetInt("top-k")

			a, err := buildApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			matches, err := a.Orchestrator.Resolve(ctx, args[0], topK)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, matches)
			}
			if len(matches) == 0 {
				fmt.Fprintln(out, pipeline.NoIndexMessage)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATTERN\tSCORE")
			for _, m := range matches {
				fmt.Fprintf(tw, "%s\t%.4f\n", m.Pattern, m.Score)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntP("top-k", "k", 0, "number of sources (0 = configured default)")
	cmd.Flags().Duration("timeout", 30*time.Second, "overall timeout (0 = none)")
	return cmd
}

func retrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve records for an IP from one index pattern",
		Long: `Run a structured retrieval without resolution or rewriting.

Times accept "2006-01-02 15:04:05", "2006-01-02T15:04:05" or "2006-01-02" in
the configured timezone. Without times the last hour is searched.`,
		Example: `  logscout retrieve --ip 10.0.0.5 --index 'email_firewall*' --start 2025-10-01 --end 2025-10-01`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			ip, _ := cmd.Flags().GetString("ip")
			index, _ := cmd.Flags().GetString("index")
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")

			a, err := buildApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Orchestrator.Retrieve(ctx, query.Spec{
				IP:        ip,
				Index:     index,
				StartTime: start,
				EndTime:   end,
			})
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().String("ip", "", "IP address to look up")
	cmd.Flags().String("index", "", "index pattern, e.g. email_firewall*")
	cmd.Flags().String("start", "", "window start")
	cmd.Flags().String("end", "", "window end")
	cmd.Flags().Duration("timeout", 2*time.Minute, "overall timeout (0 = none)")
	_ = cmd.MarkFlagRequired("ip")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the configured log sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, cfg.Sources)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATTERN\tDESCRIPTION")
			for _, s := range cfg.Sources {
				fmt.Fprintf(tw, "%s\t%s\n", s.Pattern, s.Description)
			}
			return tw.Flush()
		},
	}
}

// routeInfo is the output of the route command.
type routeInfo struct {
	Index          string   `json:"index"`
	IPFields       []string `json:"ip_fields"`
	TimestampField string   `json:"timestamp_field"`
	Cluster        string   `json:"cluster"`
	URL            string   `json:"url"`
}

func routeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <index>",
		Short: "Show the schema and cluster an index pattern routes to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := schema.FromConfig(cfg)
			if err != nil {
				return err
			}

			index := args[0]
			cl, err := reg.ClusterFor(index)
			if err != nil {
				return err
			}
			m := reg.Lookup(index)
			info := routeInfo{
				Index:          index,
				IPFields:       m.IPFields,
				TimestampField: m.TimestampField,
				Cluster:        cl.Name,
				URL:            security.RedactURL(cl.URL),
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, info)
			}
			fmt.Fprintf(out, "index:      %s\n", info.Index)
			fmt.Fprintf(out, "ip fields:  %s\n", strings.Join(info.IPFields, ", "))
			fmt.Fprintf(out, "timestamp:  %s\n", info.TimestampField)
			fmt.Fprintf(out, "cluster:    %s (%s)\n", info.Cluster, info.URL)
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print pipeline events from the audit log, oldest first",
		Long: `Print pipeline events from the audit log, oldest first.

With --replay the events are republished to the configured Kafka bus
instead, e.g. after the brokers were unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Bus.EventLog == "" {
				return fmt.Errorf("no event log configured (bus.event_log)")
			}

			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")
			replay, _ := cmd.Flags().GetBool("replay")

			events, err := bus.NewEventLogger(cfg.Bus.EventLog)
			if err != nil {
				return err
			}
			defer events.Close()

			if replay {
				return replayEvents(cmd, cfg, log, events, time.Now().Add(-since))
			}

			logged, err := events.Events(time.Now().Add(-since), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, logged)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTOPIC\tTYPE\tRUN")
			for _, le := range logged {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					le.Timestamp.Format(time.RFC3339), le.Topic, le.Event.Type, le.Event.CorrelationID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Duration("since", time.Hour, "how far back to read")
	cmd.Flags().Int("limit", 100, "maximum events (0 = all)")
	cmd.Flags().Bool("replay", false, "republish events to the kafka bus instead of printing them")
	return cmd
}

// replayEvents publishes logged events to the configured Kafka bus. The
// target bus does not write the event log, so replayed events are not
// appended again.
func replayEvents(cmd *cobra.Command, cfg *config.Config, log *logger.Logger, events *bus.EventLogger, since time.Time) error {
	if !strings.EqualFold(cfg.Bus.Type, "kafka") {
		return fmt.Errorf("--replay needs bus.type kafka, have %q", cfg.Bus.Type)
	}

	target := cfg.Bus
	target.EventLog = ""
	b, err := bus.NewBus(target, log)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	n, err := events.Replay(ctx, b, since)
	fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events\n", n)
	return err
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API:
  POST /v1/ask, /v1/resolve, /v1/retrieve
  GET  /v1/sources, /v1/history, /healthz, /readyz, /metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().IntP("port", "p", 0, "HTTP port (overrides config)")
	cmd.Flags().String("host", "", "HTTP host (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}

	log.Info("Starting logscout", "version", version, "addr", cfg.Address())

	a, err := app.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.ServerConfig(version), a.ServerDeps(), log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.Info("Shutdown signal received", "signal", sig.String())
	}

	if err := srv.Stop(context.Background()); err != nil {
		return err
	}
	return <-errCh
}
