package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"logitdash/adapters/charts"
	"logitdash/adapters/postgres"
	"logitdash/adapters/rng"
	"logitdash/adapters/stats/glm"
	"logitdash/adapters/stats/importance"
	"logitdash/adapters/tabular"
	"logitdash/app"
	"logitdash/domain/dataset"
	"logitdash/domain/model"
	"logitdash/internal"
	"logitdash/internal/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.UserMessage(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "logitdash-cli",
		Short:         "Fit and report logistic regressions from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newFitCmd(),
		newSnippetCmd(),
		newColumnsCmd(),
		newConvertCmd(),
		newJournalCmd(),
	)
	return rootCmd
}

// selection holds the flags shared by fit and snippet
type selection struct {
	data        string
	response    string
	explanatory []string
	level       string
}

func (s *selection) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.data, "data", "data/dvd.csv", "Dataset file (.csv, .xlsx, .cbor, .cbor.zst)")
	cmd.Flags().StringVar(&s.response, "response", "", "Response variable")
	cmd.Flags().StringSliceVar(&s.explanatory, "explanatory", nil, "Explanatory variables, comma separated")
	cmd.Flags().StringVar(&s.level, "level", "", "Response level coded as 1")
}

// cliLogger logs warnings and above unless LOG_LEVEL says otherwise
func cliLogger() *internal.Logger {
	level := internal.LogLevelWarn
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = internal.ParseLogLevel(env)
	}
	return internal.NewLoggerTo(os.Stderr, level, "text")
}

func loadTable(path string) (*dataset.Table, error) {
	return tabular.NewLoader(tabular.DefaultConfig(), cliLogger()).Load(path)
}

func newService() *app.ModelService {
	return app.NewModelService(app.ModelServiceDeps{
		Stats:      glm.NewEstimator(glm.DefaultConfig()),
		Importance: importance.NewRanker(rng.New(), importance.DefaultConfig()),
		Plots:      charts.NewRenderer(charts.Config{}),
		Logger:     cliLogger(),
	})
}

func newFitCmd() *cobra.Command {
	var sel selection
	var format string
	var orPlot, piPlot string
	var withImportance bool

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a logistic regression and print odds ratios and fit statistics",
		Long: `Fit a binomial GLM with logit link.

Example: logitdash-cli fit --data data/dvd.csv --response buy --explanatory coupon,purchase`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd.Context(), cmd.OutOrStdout(), sel, format, orPlot, piPlot, withImportance)
		},
	}

	sel.register(cmd)
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, markdown or json")
	cmd.Flags().StringVar(&orPlot, "plot", "", "Write the odds-ratio plot to this PNG file")
	cmd.Flags().StringVar(&piPlot, "importance-plot", "", "Write the permutation importance plot to this PNG file")
	cmd.Flags().BoolVar(&withImportance, "importance", false, "Compute permutation importance")
	return cmd
}

func runFit(ctx context.Context, out io.Writer, sel selection, format, orPlot, piPlot string, withImportance bool) error {
	switch format {
	case "text", "markdown", "json":
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown format %q", format))
	}

	table, err := loadTable(sel.data)
	if err != nil {
		return err
	}
	req, err := app.BuildRequest(table, sel.response, sel.explanatory, sel.level)
	if err != nil {
		return err
	}

	svc := newService()
	m, err := svc.Fit(ctx, table, req, "")
	if err != nil {
		return err
	}
	oddsRatios := svc.OddsRatios(m)
	metrics := svc.Metrics(m)

	var imp []model.Importance
	if withImportance || piPlot != "" {
		rows, err := svc.Importance(ctx, m)
		if err != nil {
			return err
		}
		imp = rows
	}

	if orPlot != "" {
		img, err := svc.OddsRatioPlot(m)
		if err != nil {
			return err
		}
		if err := os.WriteFile(orPlot, img, 0o644); err != nil {
			return errors.Wrapf(err, "cannot write %s", orPlot)
		}
	}
	if piPlot != "" {
		img, err := svc.ImportancePlot(imp)
		if err != nil {
			return err
		}
		if err := os.WriteFile(piPlot, img, 0o644); err != nil {
			return errors.Wrapf(err, "cannot write %s", piPlot)
		}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"formula":     m.Formula,
			"level":       m.PositiveAs,
			"odds_ratios": oddsRatios,
			"fit":         metrics,
			"importance":  imp,
		})
	case "markdown":
		md, err := svc.Report(app.ReportInput{
			Dataset:    table.Name(),
			Model:      m,
			OddsRatios: oddsRatios,
			Metrics:    metrics,
			Importance: imp,
		})
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, md)
		return err
	}

	fmt.Fprintf(out, "Logistic regression (GLM)\nData: %s\nResponse variable: %s\nLevel: %s\nExplanatory variables: %s\n\n",
		table.Name(), req.Response, m.PositiveAs, strings.Join(sel.explanatory, ", "))
	writeTable(out, app.OddsRatioTable(oddsRatios))
	fmt.Fprintf(out, "\nSignif. codes: 0 '***' 0.001 '**' 0.01 '*' 0.05 '.' 0.1 ' ' 1\n\n%s\n", app.FitSummaryText(metrics))
	if len(imp) > 0 {
		fmt.Fprintln(out, "\nPermutation importance (decrease in AUC):")
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, row := range imp {
			fmt.Fprintf(tw, "%s\t%s\t(sd %s)\n", row.Variable, app.FormatFloat(row.Mean), app.FormatFloat(row.StdDev))
		}
		tw.Flush()
	}
	return nil
}

func writeTable(out io.Writer, view app.TableView) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(view.Header, "\t")+"\t")
	for _, row := range view.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	tw.Flush()
}

func newSnippetCmd() *cobra.Command {
	var sel selection
	var lang string

	cmd := &cobra.Command{
		Use:   "snippet",
		Short: "Print code that reproduces a fit, without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(sel.data)
			if err != nil {
				return err
			}
			req, err := app.BuildRequest(table, sel.response, sel.explanatory, sel.level)
			if err != nil {
				return err
			}
			code, err := app.NewSnippetGenerator().Generate(app.SnippetLang(lang), app.SnippetInput{
				Dataset:  table.Name(),
				DataFile: sel.data,
				Request:  req,
			})
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), code)
			return err
		},
	}

	sel.register(cmd)
	cmd.Flags().StringVar(&lang, "lang", string(app.SnippetCLI), "Snippet language: cli or python")
	return cmd
}

func newColumnsCmd() *cobra.Command {
	var data string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "columns",
		Short: "List the columns of a dataset with their type and missing values",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(data)
			if err != nil {
				return err
			}
			summaries := dataset.Summarize(table)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}

			fmt.Fprintf(out, "%s: %s rows\n", table.Name(), app.FormatCount(table.Rows()))
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "column\ttype\tmissing\tlevels\tbinary")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\n", s.Name, s.Type, s.Missing, s.LevelCount, s.Binary)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&data, "data", "data/dvd.csv", "Dataset file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert [input] [output.cbor|output.cbor.zst]",
		Short: "Convert a CSV or XLSX dataset to a binary frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := tabular.NewLoader(tabular.DefaultConfig(), cliLogger())
			table, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			if err := loader.Save(args[1], table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s rows, %d columns)\n", args[1], app.FormatCount(table.Rows()), len(table.Columns()))
			return nil
		},
	}
}

func newJournalCmd() *cobra.Command {
	var databaseURL string
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent fits recorded by the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.ConfigInvalid("DATABASE_URL or --database-url is required")
			}
			ctx := cmd.Context()
			db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
			if err != nil {
				return errors.DatabaseError("cannot connect", err)
			}
			journal := postgres.NewFitJournal(db)
			defer journal.Close()

			fits, err := journal.Recent(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "created\tdataset\tformula\tnobs\tAIC")
			for _, f := range fits {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", f.CreatedAt.Format("2006-01-02 15:04:05"), f.Dataset, f.Formula, f.NObs, app.FormatFloat(f.AIC))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of fits to list")
	return cmd
}
