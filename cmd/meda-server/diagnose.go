package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Markitchi/Meda/internal/config"
	"github.com/Markitchi/Meda/internal/domain/diagnosis"
	"github.com/Markitchi/Meda/internal/platform/imageai"
)

// scan is an image described by type and region only; it is assessed by
// the built-in analyzer before aggregation.
type scan struct {
	ImageType diagnosis.ImageType `json:"image_type"`
	BodyPart  string              `json:"body_part"`
}

type diagnoseInput struct {
	diagnosis.Input
	Scans []scan `json:"scans"`
}

func diagnoseCmd() *cobra.Command {
	var (
		inputPath     string
		analyzeImages bool
	)
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run the diagnosis engine on a JSON input file and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if inputPath != "-" {
				f, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var provider diagnosis.ImageFindingProvider
			if analyzeImages {
				analyzer, err := imageai.NewAnalyzer(imageai.Config{
					MinDelay: cfg.MockMinDelay,
					MaxDelay: cfg.MockMaxDelay,
				})
				if err != nil {
					return err
				}
				provider = analyzer
			}
			// stdout carries the report
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()

			opts := diagnosis.Options{
				ConfidenceBaseline: cfg.ConfidenceBaseline,
				ConfidenceCap:      cfg.ConfidenceCap,
				MaxDifferential:    cfg.MaxDifferential,
			}
			return runDiagnose(cmd.Context(), in, cmd.OutOrStdout(), opts, provider, cfg.AnalysisConcurrency, logger)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "JSON input file, - for stdin")
	cmd.Flags().BoolVar(&analyzeImages, "analyze-images", false, "Assess entries of \"scans\" with the simulated image analyzer")
	return cmd
}

func runDiagnose(ctx context.Context, r io.Reader, w io.Writer, opts diagnosis.Options,
	provider diagnosis.ImageFindingProvider, concurrency int, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var in diagnoseInput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	if len(in.Scans) > 0 && provider == nil {
		return fmt.Errorf("input has %d scan(s); pass --analyze-images to assess them", len(in.Scans))
	}
	refs := make([]diagnosis.ImageRef, 0, len(in.Scans))
	for i, s := range in.Scans {
		if !s.ImageType.Valid() {
			return fmt.Errorf("scan %d: invalid image_type %q", i, s.ImageType)
		}
		refs = append(refs, diagnosis.ImageRef{ID: fmt.Sprintf("scan-%d", i+1), ImageType: s.ImageType, BodyPart: s.BodyPart})
	}
	if len(refs) > 0 {
		findings, err := diagnosis.ResolveFindings(ctx, provider, refs, concurrency, logger)
		if err != nil {
			return err
		}
		in.Images = append(in.Images, findings...)
	}

	report := diagnosis.NewAggregator(opts).Diagnose(in.Input)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
