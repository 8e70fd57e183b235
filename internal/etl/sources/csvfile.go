package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"dynetl/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local CSV file. Header labels are standardised and
// cells are typed.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:      "csv_file",
		Label:     "CSV File",
		RecordTag: "csv_block",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Required: false, Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Required: false, Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	records, err := readCSVRecords(cfg)
	if err != nil {
		return nil, err
	}
	return inferSchema(records), nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return streamRecords(ctx, func() ([]etl.Record, error) { return readCSVRecords(cfg) })
}

func readCSVRecords(cfg etl.SourceConfig) ([]etl.Record, error) {
	headers, rows, err := readCSVFile(cfg)
	if err != nil {
		return nil, err
	}
	prov := map[string]string{"file": stringOpt(cfg, "filePath"), "headers": strings.Join(headers, ",")}

	records := make([]etl.Record, 0, len(rows))
	for i, row := range rows {
		data := make(map[string]any, len(headers))
		for j, h := range headers {
			if j < len(row) {
				data[h] = inferScalar(row[j])
			} else {
				data[h] = nil
			}
		}
		records = append(records, etl.Record{
			Data:       data,
			SourceType: "csv_block",
			Provenance: withIndex(prov, "row_index", i),
		})
	}
	return records, nil
}

func readCSVFile(cfg etl.SourceConfig) ([]string, [][]string, error) {
	filePath := stringOpt(cfg, "filePath")
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delim, ok := cfg["delimiter"].(string); ok && len(delim) > 0 {
		reader.Comma = rune(delim[0])
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty csv file")
	}

	hasHeader := true
	if h, ok := cfg["hasHeader"].(string); ok {
		hasHeader = strings.ToLower(h) != "false"
	}

	var headers []string
	var rows [][]string
	if hasHeader {
		headers = make([]string, len(records[0]))
		for i, h := range records[0] {
			headers[i] = standardizeKey(h)
		}
		rows = records[1:]
	} else {
		// col_1, col_2, ...
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("col_%d", i+1)
		}
		rows = records
	}

	return headers, rows, nil
}
