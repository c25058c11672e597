package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/logscout/internal/evaluation"
)

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <cases.yaml>",
		Short: "Score source resolution against labelled questions",
		Long: `Runs every labelled question in the cases file through the resolver and
reports NDCG, recall and precision at each cut-off plus MRR and MAP.

The cases file is a YAML list:

  - id: firewall
    question: which IPs were blocked by the mail firewall?
    relevant: ["email_firewall*"]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			cases, err := evaluation.LoadCases(args[0])
			if err != nil {
				return err
			}
			ks, _ := cmd.Flags().GetIntSlice("k")

			a, err := buildApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := evaluation.NewEvaluator(a.Resolver).Evaluate(ctx, cases, ks)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, report)
			}
			return printEvaluation(out, report)
		},
	}
	cmd.Flags().IntSlice("k", evaluation.DefaultKs, "cut-offs to report")
	cmd.Flags().Duration("timeout", 5*time.Minute, "overall timeout (0 = none)")
	return cmd
}

func printEvaluation(w io.Writer, r *evaluation.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tFIRST HIT\tRANKED")
	for _, res := range r.Results {
		hit := "-"
		if res.FirstHit > 0 {
			hit = fmt.Sprint(res.FirstHit)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.ID, hit, strings.Join(res.Ranked, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := r.Summary
	fmt.Fprintf(w, "\n%d cases, %d misses, MRR %.4f, MAP %.4f\n", s.CaseCount, s.Misses, s.MeanMRR, s.MAP)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "K\tNDCG\tRECALL\tPRECISION")
	for _, k := range r.Ks {
		fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.4f\n", k, s.MeanNDCG[k], s.MeanRecall[k], s.MeanPrecision[k])
	}
	return tw.Flush()
}
