package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/naka-gawa/mrnag/internal/domain"
	"github.com/naka-gawa/mrnag/internal/formatter"
	"github.com/naka-gawa/mrnag/internal/usecase"
)

// filterFlags are the report's merge request filters.
type filterFlags struct {
	drafts     bool
	onlyDrafts bool
	include    []string
	exclude    []string
	minimumAge int
	states     []string
	authors    []string
}

var reportFilters filterFlags

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Reports open merge requests of every configured project",
	Long: `Fetches the open merge requests of every configured project and prints a
report in the chosen format. Projects that could not be fetched are listed with
the reason; with --strict they also make the command exit with status 2.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return &exitError{code: usecase.ExitConfigError, err: err}
		}

		now := time.Now()
		filters, err := reportFilters.build(now)
		if err != nil {
			return err
		}

		report, err := newRunner().Run(cmd.Context(), cfg, filters, viper.GetString("format"), formatter.Options{Now: now})
		if err != nil {
			return err
		}

		if path := viper.GetString("output"); path != "" {
			err = writeReportFile(path, report.Payload)
		} else {
			_, err = cmd.OutOrStdout().Write(report.Payload)
		}
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}

		if code := usecase.ExitCode(report.Result, viper.GetBool("strict")); code != usecase.ExitOK {
			return &exitError{code: code}
		}
		return nil
	},
}

// writeReportFile writes payload to path, including any error from closing it.
func writeReportFile(path string, payload []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

// build turns the flags into filters. Drafts are hidden unless --drafts or
// --only-drafts is given.
func (f filterFlags) build(now time.Time) ([]usecase.Filter, error) {
	var filters []usecase.Filter
	switch {
	case f.onlyDrafts:
		filters = append(filters, usecase.OnlyDrafts())
	case !f.drafts:
		filters = append(filters, usecase.ExcludeDrafts())
	}
	if len(f.states) > 0 {
		states := make([]domain.State, 0, len(f.states))
		for _, s := range f.states {
			state, err := domain.ParseState(s)
			if err != nil {
				return nil, err
			}
			states = append(states, state)
		}
		filters = append(filters, usecase.ByState(states...))
	}
	if len(f.include) > 0 {
		filters = append(filters, usecase.WithAnyLabel(f.include...))
	}
	if len(f.exclude) > 0 {
		filters = append(filters, usecase.WithoutLabels(f.exclude...))
	}
	if f.minimumAge < 0 {
		return nil, fmt.Errorf("--minimum-age must not be negative")
	}
	if f.minimumAge > 0 {
		filters = append(filters, usecase.MinimumAge(time.Duration(f.minimumAge)*24*time.Hour, now))
	}
	if len(f.authors) > 0 {
		filters = append(filters, usecase.ByAuthor(f.authors...))
	}
	return filters, nil
}

// legacyFlagNames accepts the flag spellings of earlier releases.
func legacyFlagNames(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "wips":
		name = "drafts"
	case "only-wips":
		name = "only-drafts"
	case "to-format":
		name = "format"
	}
	return pflag.NormalizedName(name)
}

func init() {
	rootCmd.AddCommand(reportCmd)

	flags := reportCmd.Flags()
	flags.StringP("format", "t", "text", "Output format (text, markdown, json, csv, slack, xlsx)")
	flags.StringP("output", "o", "", "Write the report to a file instead of stdout")
	flags.Bool("strict", false, "Exit with status 2 when any project could not be fetched")
	flags.BoolVar(&reportFilters.drafts, "drafts", false, "Include draft (WIP) merge requests")
	flags.BoolVar(&reportFilters.onlyDrafts, "only-drafts", false, "Only report draft (WIP) merge requests")
	flags.StringArrayVar(&reportFilters.include, "include", nil, "Keep merge requests with this label (repeatable)")
	flags.StringArrayVar(&reportFilters.exclude, "exclude", nil, "Drop merge requests with this label (repeatable)")
	flags.IntVar(&reportFilters.minimumAge, "minimum-age", 0, "Minimum age in days")
	flags.StringSliceVar(&reportFilters.states, "state", nil, "Keep merge requests in these states (open, draft, merged, closed)")
	flags.StringSliceVar(&reportFilters.authors, "author", nil, "Keep merge requests by these authors")
	flags.SetNormalizeFunc(legacyFlagNames)
	reportCmd.MarkFlagsMutuallyExclusive("drafts", "only-drafts")
	bindFlags(reportCmd, "format", "output", "strict")
}
