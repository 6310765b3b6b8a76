package cli

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/shaiso/Ingestor/internal/loader"
)

// NewFileCmd создаёт группу команд для локальной работы с файлами.
// Команды не обращаются к API.
func NewFileCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Inspect data files locally",
	}

	cmd.AddCommand(newFileAnalyzeCmd(outputFn))
	return cmd
}

func newFileAnalyzeCmd(outputFn func() *Output) *cobra.Command {
	var (
		delimiter string
		quote     string
		columns   []string
		meta      loader.TableMeta
		opts      loader.AnalyzeOptions
	)

	cmd := &cobra.Command{
		Use:   "analyze PATH",
		Short: "Compute per-column statistics of a data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if meta.Delimiter, err = parseRune(delimiter); err != nil {
				return fmt.Errorf("--delimiter: %w", err)
			}
			if meta.Quote, err = parseRune(quote); err != nil {
				return fmt.Errorf("--quote: %w", err)
			}
			if meta.Columns, err = parseColumns(columns); err != nil {
				return err
			}

			results, err := loader.Analyze(cmd.Context(), args[0], meta, opts)
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"TABLE", "INDEX", "NAME", "SANITIZED", "TYPE", "MIN_LEN", "MAX_LEN"}
			var rows [][]string
			for _, res := range results {
				out.Success(fmt.Sprintf("%s: %d records", res.Table, res.RecordCount))
				if len(res.MissingColumns) > 0 {
					out.Warn(fmt.Sprintf("%s: missing columns %s", res.Table, strings.Join(res.MissingColumns, ", ")))
				}
				for _, c := range res.Columns {
					rows = append(rows, []string{
						res.Table,
						strconv.Itoa(c.Index),
						c.Name,
						c.Sanitized,
						c.Type,
						strconv.Itoa(c.MinLen),
						strconv.Itoa(c.MaxLen),
					})
				}
			}

			out.Print(headers, rows, results)
			return nil
		},
	}

	cmd.Flags().StringVar(&meta.Table, "table", "", "Destination table name")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "Field delimiter (default by extension, \\t for tab)")
	cmd.Flags().StringVar(&quote, "quote", `"`, "Quote character (none if empty)")
	cmd.Flags().BoolVar(&meta.HasHeader, "header", true, "First record is a header")
	cmd.Flags().StringVar(&meta.Sheet, "sheet", "", "Sheet or sub-table to read (all if empty)")
	cmd.Flags().StringVar(&meta.Encoding, "encoding", "", "Text encoding (WHATWG name, utf-8 if empty)")
	cmd.Flags().StringSliceVar(&columns, "column", nil, "Expected column as NAME[:TYPE[:WIDTH]] (repeatable)")
	cmd.Flags().IntVar(&meta.MaxIdentifierLength, "max-identifier-length", loader.DefaultMaxIdentifierLength, "Maximum sanitized identifier length")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", loader.ChunkSize, "Records per analysis chunk")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Chunks analysed in parallel (GOMAXPROCS if 0)")
	cmd.Flags().BoolVar(&opts.SkipFingerprint, "no-fingerprint", false, "Skip file fingerprint")

	return cmd
}

// parseRune разбирает одиночный символ флага; "\t" означает табуляцию.
func parseRune(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("expected a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// parseColumns разбирает значения --column вида NAME[:TYPE[:WIDTH]].
func parseColumns(specs []string) ([]loader.ColumnMeta, error) {
	cols := make([]loader.ColumnMeta, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		col := loader.ColumnMeta{Name: parts[0]}
		if col.Name == "" {
			return nil, fmt.Errorf("invalid column %q: empty name", spec)
		}
		if len(parts) > 1 {
			col.Type = parts[1]
		}
		if len(parts) > 2 {
			w, err := strconv.Atoi(parts[2])
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("invalid column %q: width must be a positive integer", spec)
			}
			col.Width = w
		}
		cols = append(cols, col)
	}
	return cols, nil
}
