package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/i474232898/teleconnection-forecast/internal/common"
	"github.com/i474232898/teleconnection-forecast/internal/config"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

var (
	plotModels   []string
	plotDate     string
	plotRun      string
	plotIndex    string
	plotOut      string
	plotBase64   bool
	plotDeadline time.Duration
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Fetch forecasts and write a comparison chart",
	Long: `Fetches the selected index forecast for every --model, averages ensemble members,
and writes the chart as PNG to --out, or prints it base64-encoded with --base64.`,
	Example: `  teleconnection-forecast plot --model gfs --model gefs --date 2024-01-15 --run 00 --index pna --out pna.png`,
	RunE:    runPlot,
}

func init() {
	plotCmd.Flags().StringSliceVarP(&plotModels, "model", "m", nil, "model identifier (repeatable or comma-separated)")
	plotCmd.Flags().StringVar(&plotDate, "date", "", "forecast date, YYYY-MM-DD (default today, UTC)")
	plotCmd.Flags().StringVar(&plotRun, "run", "00", "model run: 00, 06, 12 or 18")
	plotCmd.Flags().StringVar(&plotIndex, "index", "pna", "teleconnection index: ao, nao, pna, epo, wpo")
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "", "output PNG file")
	plotCmd.Flags().BoolVar(&plotBase64, "base64", false, "print the PNG base64-encoded to stdout")
	plotCmd.Flags().DurationVar(&plotDeadline, "timeout", 2*time.Minute, "overall deadline for fetching all models")
	_ = plotCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(plotCmd)
}

func runPlot(cmd *cobra.Command, args []string) error {
	if plotOut == "" && !plotBase64 {
		return fmt.Errorf("one of --out or --base64 is required")
	}

	req, err := plotRequestFromFlags(time.Now())
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	p, err := buildPipeline(cfg)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), plotDeadline)
	defer cancel()

	result, err := p.service.Plot(ctx, req)
	for _, f := range result.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s skipped (%s): %v\n", f.Query.Model, f.Kind(), f.Err)
	}
	if err != nil {
		return fmt.Errorf("building plot: %w", err)
	}

	if plotBase64 {
		fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(result.Image))
	}
	if plotOut != "" {
		if err := os.WriteFile(plotOut, result.Image, 0o644); err != nil {
			return fmt.Errorf("writing chart: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s) for %s, %d model(s)\n",
			plotOut, humanize.Bytes(uint64(len(result.Image))), result.Date, result.Dataset.Len())
	}
	return nil
}

// plotRequestFromFlags converts the command flags into a plot request.
func plotRequestFromFlags(now time.Time) (teleconnection.PlotRequest, error) {
	date := now.UTC().Truncate(24 * time.Hour)
	if plotDate != "" {
		d, err := teleconnection.ParseDate(plotDate)
		if err != nil {
			return teleconnection.PlotRequest{}, err
		}
		date = d
	}
	run, err := teleconnection.ParseModelRun(plotRun)
	if err != nil {
		return teleconnection.PlotRequest{}, err
	}
	idx, err := teleconnection.ParseIndex(plotIndex)
	if err != nil {
		return teleconnection.PlotRequest{}, err
	}
	return teleconnection.PlotRequest{
		Models: common.SplitList(plotModels...),
		Date:   date,
		Run:    run,
		Index:  idx,
	}, nil
}
