package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/memory"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		baseDir  string
		excludes []string
		maxBytes int64
		noBar    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <glob>...",
		Short: "Store files as memories, one document per file",
		Long: `Store every file matching the globs as one memory. The document id is
the file path relative to --base, so re-ingesting a file replaces it.
Metadata holds path, size and ext.

Examples:
  nim-memory ingest "notes/**/*.md"
  nim-memory ingest "docs/**/*.txt" --exclude "**/draft/**"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectFiles(args, excludes)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files matched.")
				return nil
			}

			r, cleanup, err := a.openRetriever(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetVisibility(!noBar),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)

			var stored, skipped int
			var warnings []string
			for _, path := range files {
				doc, skip, err := readDocument(path, baseDir, maxBytes)
				switch {
				case err != nil:
					warnings = append(warnings, err.Error())
				case skip != "":
					skipped++
					warnings = append(warnings, fmt.Sprintf("%s: %s", path, skip))
				default:
					if err := r.AddDocument(cmd.Context(), doc.Text, doc.Metadata, doc.ID); err != nil {
						_ = bar.Close()
						return fmt.Errorf("ingest %s: %w", path, err)
					}
					stored++
				}
				_ = bar.Add(1)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingest complete:\n")
			fmt.Fprintf(out, "  Files stored:  %d\n", stored)
			fmt.Fprintf(out, "  Files skipped: %d\n", skipped)
			if len(warnings) > 0 {
				fmt.Fprintf(out, "\nWarnings:\n")
				for _, w := range warnings {
					fmt.Fprintf(out, "  - %s\n", w)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseDir, "base", ".", "directory document ids are relative to")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "glob patterns to skip (doublestar syntax)")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 1<<20, "skip files larger than this")
	cmd.Flags().BoolVar(&noBar, "no-progress", false, "hide the progress bar")

	return cmd
}

// collectFiles expands the patterns, drops excluded paths and returns a
// sorted, de-duplicated list.
func collectFiles(patterns, excludes []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			excluded, err := matchesAny(excludes, filepath.ToSlash(m))
			if err != nil {
				return nil, err
			}
			if excluded {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}

func matchesAny(patterns []string, path string) (bool, error) {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// readDocument loads one file. A non-empty skip reason means the file is
// left out without failing the run.
func readDocument(path, baseDir string, maxBytes int64) (doc *memory.Document, skip string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, fmt.Sprintf("larger than %d bytes", maxBytes), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, "empty", nil
	}
	if !utf8.ValidString(text) {
		return nil, "not valid UTF-8", nil
	}

	id, err := documentID(path, baseDir)
	if err != nil {
		return nil, "", err
	}

	return &memory.Document{
		ID:   id,
		Text: text,
		Metadata: memory.Metadata{
			"path": memory.String(id),
			"size": memory.Int(info.Size()),
			"ext":  memory.String(strings.TrimPrefix(filepath.Ext(path), ".")),
		},
	}, "", nil
}

// documentID is path relative to baseDir with forward slashes.
func documentID(path, baseDir string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		// Outside the base directory: keep the cleaned path.
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	return filepath.ToSlash(rel), nil
}
