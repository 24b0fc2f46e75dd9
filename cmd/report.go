package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/drgrieve/TeslaChargingManager/app"
	"github.com/drgrieve/TeslaChargingManager/config"
	"github.com/drgrieve/TeslaChargingManager/core/journal"
	"github.com/drgrieve/TeslaChargingManager/infra/report"
	"github.com/drgrieve/TeslaChargingManager/pkg/export"
)

var reportOpts struct {
	from    string
	to      string
	session string
	out     string
	export  string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise journalled sessions and chart them as HTML",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportOpts.from, "from", "24h", "start as RFC3339 or a duration before now")
	f.StringVar(&reportOpts.to, "to", "", "end as RFC3339 or a duration before now")
	f.StringVar(&reportOpts.session, "session", "", "only this session id")
	f.StringVarP(&reportOpts.out, "out", "o", "report.html", "HTML output file, empty to skip the chart")
	f.StringVar(&reportOpts.export, "export", "", "also write the records to a .csv or .jsonl file")
	rootCmd.AddCommand(reportCmd)
}

// parseTime accepts RFC3339 or a duration counted back from now.
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return t, nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Read(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Journal.Validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	now := time.Now()
	q := journal.Query{SessionID: reportOpts.session}
	if q.Start, err = parseTime(reportOpts.from, now); err != nil {
		return err
	}
	if q.End, err = parseTime(reportOpts.to, now); err != nil {
		return err
	}

	store, err := app.OpenJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer store.Close()
	recs, err := store.Query(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	writeSummary(cmd.OutOrStdout(), report.Summarize(recs))
	if reportOpts.export != "" {
		if err := exportRecords(reportOpts.export, recs); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d records exported to %s\n", len(recs), reportOpts.export)
	}

	if reportOpts.out == "" {
		return nil
	}
	var page bytes.Buffer
	title := strings.TrimSpace("Charging " + cfg.Site.Name)
	if err := report.Render(&page, title, recs); err != nil {
		if errors.Is(err, report.ErrNoData) {
			fmt.Fprintln(cmd.OutOrStdout(), "no status samples to chart")
			return nil
		}
		return err
	}
	if err := os.WriteFile(reportOpts.out, page.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "chart written to %s\n", reportOpts.out)
	return nil
}

func exportRecords(path string, recs []journal.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, path, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSummary(w io.Writer, sessions []report.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCURVE\tMODE\tSTART\tDURATION\tREASON\tCOMMANDS\tSAFETY\tMAX A\tGRID kW")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.2f\n",
			shortID(s.ID), s.Curve, s.Mode, s.Start.Local().Format("2006-01-02 15:04"),
			s.End.Sub(s.Start).Round(time.Second), s.Reason, s.Commands, s.SafetyStops, s.MaxAmps, s.MeanGridKW)
	}
	_ = tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
