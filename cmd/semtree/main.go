// cmd/semtree/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"semtree/internal/config"
	"semtree/internal/logging"
	"semtree/internal/pass"
	"semtree/internal/propagate"
	"semtree/internal/watch"
)

var (
	flagConfig    string
	flagThreshold float64
	flagWorkers   int
	flagEmbedder  string
	flagEmbedURL  string
	flagModel     string
)

var rootCmd = &cobra.Command{
	Use:   "semtree",
	Short: "Semtree maintains a semantic integrity tree over a directory",
	Long: `Semtree hashes a directory tree like a Merkle tree, but skips hash
recomputation when a file's content changed in a way its embedding judges
semantically insignificant. Below the configured difference threshold a file
keeps its last accepted hash and fingerprint; at or above it the new hash
propagates up to the root.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().Float64Var(&flagThreshold, "threshold", -1, "Difference ceiling in [0,1]; below it content counts as unchanged")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "Leaf evaluation workers (0 = one per CPU)")
	rootCmd.PersistentFlags().StringVar(&flagEmbedder, "embedder", "", "Embedder kind: service or openai")
	rootCmd.PersistentFlags().StringVar(&flagEmbedURL, "embed-url", "", "Embedding service URL")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Embedding model name (openai embedder)")

	var buildCmd = &cobra.Command{
		Use:   "build [folder]",
		Short: "Build the initial integrity tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := initRunner(args[0])
			if err != nil {
				return err
			}
			defer runner.Close()

			report, err := runner.Build(cmd.Context())
			if err != nil {
				return fmt.Errorf("building tree: %w", err)
			}

			fmt.Printf("Build complete. %s\n", report.Summary())
			fmt.Printf("root_hash = %s\n", report.RootHash)
			return nil
		},
	}

	var verifyCmd = &cobra.Command{
		Use:   "verify [folder]",
		Short: "Verify the tree against the saved snapshot",
		Long: `Runs a verify pass against the previously saved snapshot and prints a
change report. Detected changes are a normal outcome (exit 0); a corrupt
snapshot or configuration problem exits nonzero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := initRunner(args[0])
			if err != nil {
				return err
			}
			defer runner.Close()

			report, err := runner.Verify(cmd.Context())
			if err != nil {
				return fmt.Errorf("verifying tree: %w", err)
			}

			printReport(report)
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status [folder]",
		Short: "Show the latest saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := initRunner(args[0])
			if err != nil {
				return err
			}
			defer runner.Close()

			snap, err := runner.Latest()
			if err != nil {
				return fmt.Errorf("loading snapshot: %w", err)
			}
			if snap == nil {
				fmt.Println("No snapshot found (run \"semtree build\" first)")
				return nil
			}

			leaves := 0
			for _, n := range snap.Nodes {
				if n.IsLeaf() {
					leaves++
				}
			}

			fmt.Printf("pass:      %s\n", snap.ID)
			fmt.Printf("created:   %s\n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("nodes:     %d (%d files)\n", len(snap.Nodes), leaves)
			fmt.Printf("root_hash: %s\n", snap.RootHash)

			history, err := runner.Store.History()
			if err != nil {
				return fmt.Errorf("listing passes: %w", err)
			}
			if len(history) > 1 {
				fmt.Printf("\nRetained passes:\n")
				for _, info := range history {
					fmt.Printf("  %s  %s  (%d nodes)\n", shorten(info.ID, 8), shorten(info.RootHash, 12), info.Nodes)
				}
			}
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff [path]",
		Short: "Show changes between the working copy and the last accepted version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := pass.FindRoot(".")
			if err != nil {
				return err
			}
			runner, err := initRunner(root)
			if err != nil {
				return err
			}
			defer runner.Close()

			result, err := runner.Diff(args[0])
			if err != nil {
				return fmt.Errorf("diffing %s: %w", args[0], err)
			}

			fmt.Printf("diff --semtree a/%s b/%s\n", args[0], args[0])
			printColoredDiff(result.Format())
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch [folder]",
		Short: "Re-verify continuously as files change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := initRunner(args[0])
			if err != nil {
				return err
			}
			defer runner.Close()

			logger, err := logging.NewCLI()
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}

			watcher, err := watch.New(runner.Root, func(ctx context.Context) error {
				report, err := runner.Verify(ctx)
				if err != nil {
					return err
				}
				printReport(report)
				return nil
			}, logger.Logger)
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}

			fmt.Printf("Watching %s (ctrl-c to stop)\n", runner.Root)
			return watcher.Run(cmd.Context())
		},
	}

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(watchCmd)
}

func initRunner(root string) (*pass.Runner, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewCLI()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	runner, err := pass.New(root, cfg, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("initializing runner: %w", err)
	}
	return runner, nil
}

func resolveConfig() (*config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if flagThreshold >= 0 {
		cfg.Threshold = flagThreshold
	}
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if flagEmbedder != "" {
		cfg.Embedder.Kind = flagEmbedder
	}
	if flagEmbedURL != "" {
		cfg.Embedder.URL = flagEmbedURL
	}
	if flagModel != "" {
		cfg.Embedder.Model = flagModel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printReport(report *propagate.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	if !report.HasChanges() && report.Errors == 0 {
		fmt.Println("No semantic changes.")
		fmt.Printf("root_hash = %s\n", report.RootHash)
		return
	}

	fmt.Printf("\nChanges detected (%s):\n\n", report.Summary())
	for _, res := range report.Results {
		switch {
		case res.Error != "":
			fmt.Printf("\t%s %s  [%s]\n", red("!"), res.ID, res.Error)
		case res.Status == propagate.StatusAdded:
			fmt.Printf("\t%s %s\n", blue("A"), res.ID)
		case res.Status == propagate.StatusRemoved:
			fmt.Printf("\t%s %s\n", red("D"), res.ID)
		case res.Status == propagate.StatusChanged:
			if res.Scored {
				fmt.Printf("\t%s %s  (difference %.4f)\n", yellow("M"), res.ID, res.Score)
			} else {
				fmt.Printf("\t%s %s\n", yellow("M"), res.ID)
			}
		case res.Status == propagate.StatusUnchanged && res.Scored:
			fmt.Printf("\t%s %s  (difference %.4f)\n", green("="), res.ID, res.Score)
		}
	}
	fmt.Printf("\nroot_hash = %s\n", report.RootHash)
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(diff, "\n") {
		if len(line) == 0 {
			fmt.Println()
			continue
		}
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
