package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shahjoyal/view-bunker/internal/blend"
	"github.com/shahjoyal/view-bunker/internal/store"
)

var coalFile string

var coalCmd = &cobra.Command{
	Use:   "coal",
	Short: "Manage the coal catalog",
}

var coalImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import coals from YAML, updating coals with the same name",
	Long: `Reads a YAML file of the form:

  coals:
    - name: Indo 4200
      gcv: 4200
      cost: 3100
      proximate: {ash: 6, moisture: 32, volatile_matter: 38, fixed_carbon: 24}
      oxides: {sio2: 40, al2o3: 20, fe2o3: 15, cao: 10, mgo: 4}`,
	Args: cobra.NoArgs,
	RunE: runCoalImport,
}

var coalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the coal catalog",
	Args:  cobra.NoArgs,
	RunE:  runCoalList,
}

func init() {
	coalImportCmd.Flags().StringVarP(&coalFile, "file", "f", "", "Coal catalog (YAML)")
	coalImportCmd.MarkFlagRequired("file")

	coalCmd.AddCommand(coalImportCmd)
	coalCmd.AddCommand(coalListCmd)
}

type coalFileData struct {
	Coals []blend.Coal `yaml:"coals"`
}

func runCoalImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(coalFile)
	if err != nil {
		return err
	}
	var doc coalFileData
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", coalFile, err)
	}
	if len(doc.Coals) == 0 {
		return fmt.Errorf("%s: no coals found", coalFile)
	}

	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	for i := range doc.Coals {
		c := &doc.Coals[i]
		if err := st.SaveCoal(c); err != nil {
			return fmt.Errorf("coal %d (%s): %w", i+1, c.Name, err)
		}
		fmt.Fprintf(out, "saved %s (%s)\n", c.Name, c.ID)
	}
	fmt.Fprintf(out, "Imported %d coals.\n", len(doc.Coals))
	return nil
}

func runCoalList(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	coals, err := st.ListCoals()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(coals) == 0 {
		fmt.Fprintln(out, "No coals in the catalog.")
		return nil
	}
	fmt.Fprintf(out, "%-24s  %6s  %6s  %6s  %6s  %s\n", "NAME", "GCV", "ASH%", "MOIST%", "COST", "ID")
	for _, c := range coals {
		fmt.Fprintf(out, "%-24s  %6.0f  %6.1f  %6.1f  %6.0f  %s\n",
			c.Name, c.GCV, c.Proximate.Ash, c.Proximate.Moisture, c.Cost, c.ID)
	}
	return nil
}
