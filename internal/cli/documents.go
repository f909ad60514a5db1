package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/memory"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		id       string
		metas    []string
		tags     []string
		jsonMeta string
	)

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Store a memory",
		Long: `Store a memory document.

Metadata given with --meta key=value is decoded like stored values:
"42" becomes an integer, "3.14" a float, "True" a boolean, "[1,2]" a list.
Use --json-meta for exact types; its keys win over --meta and --tag.

Examples:
  nim-memory add "Alice prefers email" --meta person=alice --tag contact
  nim-memory add "Sprint ends Friday" --id sprint-42 --json-meta '{"priority": 2}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := buildMetadata(metas, tags, jsonMeta)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.New().String()
			}

			r, cleanup, err := a.openRetriever(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := r.AddDocument(cmd.Context(), args[0], md, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "document id (default: new UUID)")
	cmd.Flags().StringArrayVarP(&metas, "meta", "m", nil, "metadata key=value (repeatable)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tags stored as a list under \"tags\"")
	cmd.Flags().StringVar(&jsonMeta, "json-meta", "", "metadata as a JSON object")

	return cmd
}

// buildMetadata merges --meta, --tag and --json-meta, later sources winning.
func buildMetadata(metas, tags []string, jsonMeta string) (memory.Metadata, error) {
	md := memory.Metadata{}

	for _, kv := range metas {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q: expected key=value", kv)
		}
		md[key] = memory.DecodeValue(value)
	}

	if len(tags) > 0 {
		items := make([]memory.Value, len(tags))
		for i, t := range tags {
			items[i] = memory.String(t)
		}
		md["tags"] = memory.Sequence(items...)
	}

	if jsonMeta != "" {
		var extra memory.Metadata
		if err := json.Unmarshal([]byte(jsonMeta), &extra); err != nil {
			return nil, fmt.Errorf("invalid --json-meta: %w", err)
		}
		for k, v := range extra {
			md[k] = v
		}
	}

	return md, nil
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a memory as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cleanup, err := a.openRetriever(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			doc, err := r.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeIndentedJSON(cmd, doc)
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete memories; unknown ids are ignored",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cleanup, err := a.openRetriever(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			for _, id := range args {
				if err := r.DeleteDocument(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		query      string
		topK       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the memories most similar to a query",
		Long: `Search memories by similarity.

Examples:
  nim-memory search -q "coffee order"
  nim-memory search -q "deadlines" -k 10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return fmt.Errorf("query is required (use -q or --query)")
			}

			r, cleanup, err := a.openRetriever(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			var results *memory.SearchResults
			if topK > 0 {
				results, err = r.Search(cmd.Context(), query, topK)
			} else {
				results, err = r.SearchDefault(cmd.Context(), query)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeIndentedJSON(cmd, results)
			}
			printResults(cmd, results)
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "search query (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default: search.default_k)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	return cmd
}

func printResults(cmd *cobra.Command, results *memory.SearchResults) {
	out := cmd.OutOrStdout()
	if results.Len() == 0 {
		fmt.Fprintln(out, "No results.")
		return
	}
	for i, m := range results.Matches() {
		fmt.Fprintf(out, "%d. [%s] distance=%.4f\n", i+1, m.ID, m.Distance)
		fmt.Fprintf(out, "   %s\n", truncateLine(m.Text, 200))

		keys := make([]string, 0, len(m.Metadata))
		for k := range m.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "   %s=%s\n", k, m.Metadata[k])
		}
	}
}

func writeIndentedJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncateLine(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
