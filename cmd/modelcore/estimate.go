package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelcore/internal/accountant"
	"modelcore/internal/config"
	"modelcore/pkg/types"
)

func newEstimateCmd(g *globals) *cobra.Command {
	var (
		desc      types.ModelDescriptor
		category  string
		modelsDir string
	)
	cmd := &cobra.Command{
		Use:   "estimate [id]",
		Short: "Print the memory estimate for a model",
		Long: "With --category the descriptor is built from flags. Otherwise the id is looked up\n" +
			"in the catalog (configured models plus --models-dir); without an id every entry is listed.",
		Example: "  modelcore estimate llama-3.1-8b-instruct --category llm --quant Q4_K_M --ctx 8192\n" +
			"  modelcore estimate --models-dir ~/models",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				desc.ID = args[0]
			}
			out := cmd.OutOrStdout()
			if category != "" {
				desc.Category = types.Category(category)
				if desc.ID == "" {
					return fmt.Errorf("model id required with --category")
				}
				n, err := desc.Normalize()
				if err != nil {
					return err
				}
				return printEstimates(out, []types.ModelDescriptor{n})
			}

			cfg, err := config.Resolve(g.configPath)
			if err != nil {
				return err
			}
			if modelsDir != "" {
				cfg.ModelsDir = modelsDir
			}
			cat := buildCatalog(cfg, zerolog.Nop())
			if desc.ID == "" {
				return printEstimates(out, cat.List())
			}
			d, ok := cat.Lookup(desc.ID)
			if !ok {
				return fmt.Errorf("model %q not in catalog; pass --category to describe it", desc.ID)
			}
			return printEstimates(out, []types.ModelDescriptor{d})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&category, "category", "", "Model category: llm|transcription|text-embedding|image-embedding")
	fl.StringVar(&desc.Size, "size", "", "Parameter count (7b, 1.5B) or size tier (tiny..large)")
	fl.StringVar(&desc.Quantization, "quant", "", "Quantization scheme (Q4_K_M, Q8_0, F16, ...)")
	fl.IntVar(&desc.ContextSize, "ctx", 0, "Context window in tokens")
	fl.StringVar(&desc.Path, "path", "", "Model file, informational only")
	fl.StringVar(&modelsDir, "models-dir", "", "Directory to scan when listing the catalog")
	return cmd
}

func printEstimates(out io.Writer, descs []types.ModelDescriptor) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCATEGORY\tESTIMATE\tBYTES")
	for _, d := range descs {
		n := accountant.Estimate(d)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.ID, d.Category, humanize.IBytes(uint64(n)), n)
	}
	return tw.Flush()
}
