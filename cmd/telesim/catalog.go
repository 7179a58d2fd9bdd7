package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/telesim/pkg/geo"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Location catalog utilities",
}

var catalogConvertCmd = &cobra.Command{
	Use:   "convert <in.csv> <out.json>",
	Args:  cobra.ExactArgs(2),
	Short: "Convert a cities CSV into a catalog JSON file",
	Long: `Convert reads a cities CSV (city,lat,lon,population) and writes the
weighted catalog JSON the producer samples from. Weights follow population
tiers; spread radii follow weight tiers. Duplicate cities keep the entry
with the largest population.

Example:
  telesim catalog convert worldcities.csv data/cities.json`,
	RunE: runCatalogConvert,
}

func init() {
	catalogCmd.AddCommand(catalogConvertCmd)
}

func runCatalogConvert(_ *cobra.Command, args []string) error {
	n, err := geo.ConvertCSVFile(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d locations to %s\n", n, args[1])
	return nil
}
