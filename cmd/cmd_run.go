package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"address-distance/internal/calculator"
	"address-distance/internal/config"
	"address-distance/internal/excel"
	"address-distance/internal/input"
	"address-distance/internal/models"
	"address-distance/internal/report"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			MarginTop(1)

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

type runOptions struct {
	origin    string
	addresses []string
	file      string
	strategy  string
	out       string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [address...]",
	Short: "Calculates distances from an origin to a list of addresses",
	Long: `
Calculates the distance from --origin to every destination. Destinations are
taken from the arguments, --address flags and --file (xlsx workbook or text
file with one address per line, "-" for stdin), in that order.
`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		origin := input.Clean([]string{runOpts.origin})
		if len(origin) == 0 {
			return errors.New("--origin is required")
		}

		strategy, err := models.ParseStrategy(runOpts.strategy)
		if err != nil {
			return err
		}

		destinations, err := loadDestinations(append(args, runOpts.addresses...), runOpts.file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if len(destinations) == 0 {
			return errors.New("no destination addresses given")
		}

		cfg := config.Load(Version)
		req := calculator.Request{Origin: origin[0], Destinations: destinations, Strategy: strategy}

		onProgress, logger, done := progressReporter(len(destinations))
		run, err := cfg.Pipeline().Run(ctx, req, onProgress, logger)
		done()

		if errors.Is(err, calculator.ErrOriginNotFound) {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("Could not find the origin address: "+req.Origin))
			return err
		}

		if run != nil {
			printRun(cmd.OutOrStdout(), run)
			if runOpts.out != "" {
				if werr := writeOutput(runOpts.out, run.Records); werr != nil {
					return errors.Join(err, werr)
				}
				log.Printf("Results written to %s", runOpts.out)
			}
		}

		return err
	},
}

// loadDestinations merges the addresses given inline with the ones read from file.
func loadDestinations(addresses []string, file string, stdin io.Reader) ([]string, error) {
	list := append([]string{}, addresses...)

	if file != "" {
		fromFile, err := readAddressFile(file, stdin)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		list = append(list, fromFile...)
	}

	return input.Clean(list), nil
}

func readAddressFile(file string, stdin io.Reader) ([]string, error) {
	if file == "-" {
		return input.ReadLines(stdin)
	}

	switch strings.ToLower(filepath.Ext(file)) {
	case ".xlsx", ".xlsm":
		wb, err := excel.OpenFile(file)
		if err != nil {
			return nil, err
		}
		defer wb.Close()
		return excel.ReadAddresses(wb)
	default:
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return input.ReadLines(f)
	}
}

// progressReporter draws a bar on interactive terminals and falls back to log lines.
func progressReporter(total int) (calculator.ProgressCallback, calculator.LoggerCallback, func()) {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logf := func(msg string) { log.Println(msg) }
		return func(_, _ int, msg string) { logf(msg) }, logf, func() {}
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Calculating"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	onProgress := func(current, _ int, _ string) {
		_ = bar.Set(current)
	}
	logger := func(msg string) {
		_ = bar.Clear()
		log.Println(msg)
	}

	return onProgress, logger, func() { _ = bar.Finish() }
}

func printRun(w io.Writer, run *models.Run) {
	summary := report.Summarize(run.Records)

	average := "n/a"
	if summary.AverageKm != nil {
		average = fmt.Sprintf("%.2f km", *summary.AverageKm)
	}

	fmt.Fprintln(w, titleStyle.Render("Distances from "+run.Origin))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%s, %s", run.OriginCoord, run.Strategy.Label())))
	fmt.Fprintf(w, "Total: %s  Successful: %s  Failed: %s  Average: %s\n",
		statStyle.Render(fmt.Sprint(summary.Total)),
		successStyle.Render(fmt.Sprint(summary.Successful)),
		errorStyle.Render(fmt.Sprint(summary.Failed)),
		statStyle.Render(average),
	)

	rows := make([][]string, len(run.Records))
	for i, r := range run.Records {
		rows[i] = report.Row(r)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(report.Columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Bold(true)
			}
			if col == 3 && row >= 0 && row < len(run.Records) {
				if run.Records[row].Succeeded() {
					return cellStyle.Foreground(successStyle.GetForeground())
				}
				return cellStyle.Foreground(errorStyle.GetForeground())
			}
			return cellStyle
		})

	fmt.Fprintln(w, t.Render())
}

func writeOutput(path string, records []models.ResultRecord) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return excel.WriteResult(path, records)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := report.WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.origin, "origin", "o", "", "origin address")
	runCmd.Flags().StringArrayVarP(&runOpts.addresses, "address", "a", nil, "destination address (repeatable)")
	runCmd.Flags().StringVarP(&runOpts.file, "file", "f", "", "xlsx or text file with destination addresses, - for stdin")
	runCmd.Flags().StringVarP(&runOpts.strategy, "strategy", "s", "straight", "straight or route")
	runCmd.Flags().StringVar(&runOpts.out, "out", "", "write results to a .csv or .xlsx file")
	rootCmd.AddCommand(runCmd)
}
