package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/bruwatch/internal/scaffolding"
)

var newCmd = &cobra.Command{
	Use:   "new <dir>",
	Short: "Create a new collection from a template",
	Long: `Create a collection directory with bruno.json, collection.bru and an
environment, ready to be watched.

Examples:
  bruwatch new ./api                         # Minimal collection
  bruwatch new ./api --template example      # With example requests
  bruwatch new --list                        # Show templates`,
	Args: func(cmd *cobra.Command, args []string) error {
		if newList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runNew,
}

var (
	newList bool
	newOpts scaffolding.GenerateOptions
)

func init() {
	rootCmd.AddCommand(newCmd)

	newCmd.Flags().BoolVar(&newList, "list", false, "List available templates")
	newCmd.Flags().StringVarP(&newOpts.Template, "template", "t", "minimal", "Template to use")
	newCmd.Flags().StringVar(&newOpts.Name, "name", "", "Collection name (default is the directory name)")
	newCmd.Flags().StringVar(&newOpts.BaseURL, "base-url", "", "Value of the baseUrl environment variable")
	newCmd.Flags().StringVar(&newOpts.Environment, "env", "local", "Name of the first environment")
	newCmd.Flags().BoolVar(&newOpts.Force, "force", false, "Overwrite existing files")
}

func runNew(cmd *cobra.Command, args []string) error {
	g := scaffolding.NewCollectionGenerator()
	out := cmd.OutOrStdout()

	if newList {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TEMPLATE\tFILES\tDESCRIPTION")
		for _, t := range g.ListTemplates() {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Name, t.Files, t.Description)
		}
		return tw.Flush()
	}

	opts := newOpts
	opts.Dir = args[0]
	created, err := g.Generate(opts)
	if err != nil {
		return err
	}
	for _, path := range created {
		fmt.Fprintf(out, "created %s\n", path)
	}
	fmt.Fprintf(out, "\nWatch it with: bruwatch watch %s\n", args[0])
	return nil
}
