package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/watcher"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <collection>",
	Short: "Show how every path of a collection is classified",
	Long: `Walk a collection directory and print the kind each path is routed as.
Ignored directories (node_modules, .git and configured patterns) are skipped.

Examples:
  bruwatch classify ./api
  bruwatch classify ./api --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

var (
	classifyFormat string
	classifyAll    bool
)

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVarP(&classifyFormat, "format", "f", "table", "Output format (table, json)")
	classifyCmd.Flags().BoolVar(&classifyAll, "all", false, "Include files classified as other")
}

type classified struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	roots, err := resolveRoots(args)
	if err != nil {
		return err
	}

	entries, err := classifyTree(roots[0].Pathname, cfg.Watcher.Ignore, classifyAll)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch classifyFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "table":
		return writeClassifyTable(out, entries)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", classifyFormat)
	}
}

// classifyTree walks root and classifies every path the watcher would see.
func classifyTree(root string, ignore []string, all bool) ([]classified, error) {
	filter := watcher.NewFilter(root, ignore)
	var entries []classified
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if filter.Ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		kind := watcher.Classify(root, path, d.IsDir())
		if kind == types.KindOther && !all {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		entries = append(entries, classified{Path: rel, Kind: kind.String()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return entries, nil
}

func writeClassifyTable(out io.Writer, entries []classified) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.Kind, e.Path)
	}
	return tw.Flush()
}
