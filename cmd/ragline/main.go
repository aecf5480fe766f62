package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/ragline/internal/app"
	"github.com/efebarandurmaz/ragline/internal/llm"
	"github.com/efebarandurmaz/ragline/internal/pipeline"
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "ragline",
		Short:         "Chunk, embed and search documents in a vector store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML); environment variables use the RAGLINE_ prefix")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	var (
		docID    string
		filePath string
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Ingest text from an argument, a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args, filePath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), configPath, func(a *app.App) error {
				res, err := a.Pipeline.Ingest(cmd.Context(), text, docID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %d chunks for document %s\n", res.ChunksStored, res.DocID)
				return nil
			})
		},
	}
	ingestCmd.Flags().StringVar(&docID, "doc-id", "", "Document id (generated when empty)")
	ingestCmd.Flags().StringVarP(&filePath, "file", "f", "", "Read the document from a file")

	var (
		topK       int
		jsonOutput bool
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd.Context(), configPath, func(a *app.App) error {
				results, err := a.Pipeline.Search(cmd.Context(), query, topK)
				if err != nil {
					return err
				}
				return printResults(cmd.OutOrStdout(), query, results, jsonOutput)
			})
		},
	}
	searchCmd.Flags().IntVarP(&topK, "top-k", "k", pipeline.DefaultTopK, "Number of results")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check the vector store and the embedding model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(a *app.App) error {
				report := a.Pipeline.Health(cmd.Context())
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
				if report.Status != pipeline.StatusHealthy {
					return fmt.Errorf("service is %s", report.Status)
				}
				return nil
			})
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			printProviders(cmd.OutOrStdout())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragline %s\n", app.Version)
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, searchCmd, healthCmd, providersCmd, versionCmd)
	return rootCmd
}

// withApp builds the App for a one-shot command and closes it afterwards.
func withApp(ctx context.Context, configPath string, fn func(*app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Load(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(a)
}

func readInput(args []string, filePath string, stdin io.Reader) (string, error) {
	switch {
	case len(args) == 1 && filePath != "":
		return "", fmt.Errorf("pass either text or --file, not both")
	case len(args) == 1:
		return args[0], nil
	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", filePath, err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

func printResults(w io.Writer, query string, results []pipeline.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"query": query, "results": results, "count": len(results)})
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(w, "%2d. %.4f  %s\n", i+1, r.Score, r.ID)
		fmt.Fprintf(w, "    %s\n", r.Text)
	}
	return nil
}

func printProviders(w io.Writer) {
	names := make([]string, 0, len(llm.KnownProviders))
	for name := range llm.KnownProviders {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Available embedding providers:")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, llm.KnownProviders[name])
	}
	fmt.Fprintln(w, "  local          (in-process hashing model, no network)")
	fmt.Fprintln(w, "  custom         (set base_url to any OpenAI-compatible endpoint)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configure in ragline.yaml or via environment:")
	fmt.Fprintln(w, "  RAGLINE_EMBEDDING_PROVIDER=tei")
	fmt.Fprintln(w, "  RAGLINE_EMBEDDING_BASE_URL=http://localhost:8080/v1")
	fmt.Fprintln(w, "  RAGLINE_SECRET_EMBEDDING_API_KEY=sk-...")
}
