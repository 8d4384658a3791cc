package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shahjoyal/view-bunker/internal/blend"
	"github.com/shahjoyal/view-bunker/internal/store"
)

var (
	blendFile  string
	blendLimit int
	rawOutput  bool
	jsonOutput bool
)

var blendCmd = &cobra.Command{
	Use:   "blend",
	Short: "Compute and inspect blends",
}

var blendComputeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute blend metrics from a YAML sheet without recording it",
	Long: `Reads a blend sheet and prints the per-mill and unit metrics.

Rows name coals from the catalog by id or name, or carry an inline coal:

  rows:
    - coal_id: Indo 4200
      percent: [60, 100, 0, 0, 0, 0]
    - coal_id: Aus 6000
      percent: [40, 0, 0, 0, 0, 0]
  flows: [40, 30, 0, 0, 0, 0]
  generation_mw: 210`,
	Args: cobra.NoArgs,
	RunE: runBlendCompute,
}

var blendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded blends, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBlendList,
}

var blendShowCmd = &cobra.Command{
	Use:   "show [blend-id]",
	Short: "Show a recorded blend as a report",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlendShow,
}

func init() {
	blendComputeCmd.Flags().StringVarP(&blendFile, "file", "f", "", "Blend sheet (YAML)")
	blendComputeCmd.MarkFlagRequired("file")
	blendComputeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	blendComputeCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print markdown without terminal styling")

	blendListCmd.Flags().IntVarP(&blendLimit, "limit", "n", 20, "Number of blends")

	blendShowCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	blendShowCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print markdown without terminal styling")

	blendCmd.AddCommand(blendComputeCmd)
	blendCmd.AddCommand(blendListCmd)
	blendCmd.AddCommand(blendShowCmd)
}

func readBlendSheet(path string) (blend.Input, error) {
	var in blend.Input
	f, err := os.Open(path)
	if err != nil {
		return in, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return in, nil
}

func printBlend(cmd *cobra.Command, b *blend.Blend) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}
	md := blendReport(b, cfg.MillNames())
	if rawOutput {
		_, err := fmt.Fprint(out, md)
		return err
	}
	_, err := fmt.Fprint(out, renderMarkdown(md))
	return err
}

func runBlendCompute(cmd *cobra.Command, args []string) error {
	in, err := readBlendSheet(blendFile)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	catalog, err := st.Catalog()
	if err != nil {
		return err
	}
	if err := catalog.Resolve(&in); err != nil {
		return err
	}
	metrics, err := blend.Compute(in)
	if err != nil {
		return err
	}
	return printBlend(cmd, &blend.Blend{Input: in, Metrics: metrics})
}

func runBlendList(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	blends, err := st.ListBlends(blendLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(blends) == 0 {
		fmt.Fprintln(out, "No blends recorded.")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %-19s  %8s  %7s  %8s  %9s\n", "ID", "RECORDED", "GCV", "AFT", "FLOW t/h", "HEAT RATE")
	for _, b := range blends {
		m := b.Metrics
		fmt.Fprintf(out, "%-36s  %-19s  %8.0f  %7.0f  %8.1f  %9.0f\n",
			b.ID, b.CreatedAt.Local().Format("2006-01-02 15:04:05"), m.GCV, m.AFT, m.TotalFlow, m.HeatRate)
	}
	return nil
}

func runBlendShow(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	b, err := st.GetBlend(args[0])
	if err != nil {
		return fmt.Errorf("blend %s: %w", args[0], err)
	}
	return printBlend(cmd, b)
}
