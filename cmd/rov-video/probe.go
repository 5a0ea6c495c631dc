package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/e7canasta/rov-video/internal/config"
	"github.com/e7canasta/rov-video/internal/gstgraph"
	"github.com/e7canasta/rov-video/internal/media"
	"github.com/e7canasta/rov-video/internal/pipeline"
)

type registryBackend interface {
	media.Backend
	Registry() *media.Registry
}

func newProbeCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Build the pipeline for the stream URL and report missing elements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			b := newBackend(c.Backend)
			out := cmd.OutOrStdout()

			if rb, ok := b.(registryBackend); ok {
				factories := make([]string, 0, len(gstgraph.Factories))
				for f := range gstgraph.Factories {
					factories = append(factories, f)
				}
				slices.Sort(factories)

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "FACTORY\tKIND\tAVAILABLE")
				for _, f := range factories {
					fmt.Fprintf(w, "%s\t%s\t%v\n", f, gstgraph.Factories[f], rb.Registry().Has(f))
				}
				w.Flush()
			}

			if c.Stream.URL == "" {
				return fmt.Errorf("no stream URL: set stream.url or --url")
			}
			src, err := pipeline.ParseSource(c.Stream.URL)
			if err != nil {
				return err
			}

			g, err := pipeline.Build(b, c.Stream.URL)
			if err != nil {
				fmt.Fprintf(out, "\n%s (%s): FAILED: %v\n", src.Redacted(), src.Codec, err)
				return err
			}
			defer g.Dispose()

			fmt.Fprintf(out, "\n%s (%s): OK, %d elements\n", src.Redacted(), src.Codec, len(g.Pipeline().Elements()))
			return nil
		},
	}
}
