package sources

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"dynetl/internal/etl"
)

// ── Key/Value File Source ───────────────────────────────────
// Reads "key: value" or "key=value" lines. A blank line ends a record; lines
// starting with '#' and lines without a separator are ignored.

type kvFileSource struct{}

func init() { etl.RegisterSource(&kvFileSource{}) }

func (s *kvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:      "kv_file",
		Label:     "Key/Value File",
		RecordTag: "kv",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to a key/value text file"},
		},
	}
}

func (s *kvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	records, err := readKVFile(cfg)
	if err != nil {
		return nil, err
	}
	return inferSchema(records), nil
}

func (s *kvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return streamRecords(ctx, func() ([]etl.Record, error) { return readKVFile(cfg) })
}

func readKVFile(cfg etl.SourceConfig) ([]etl.Record, error) {
	filePath := stringOpt(cfg, "filePath")
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseKV(data, filePath)
}

func parseKV(data []byte, filePath string) ([]etl.Record, error) {
	var (
		records   []etl.Record
		current   map[string]any
		startLine int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		records = append(records, etl.Record{
			Data:       current,
			SourceType: "kv",
			Provenance: map[string]string{
				"file":         filePath,
				"record_index": strconv.Itoa(len(records)),
				"line":         strconv.Itoa(startLine),
			},
		})
		current = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseKVLine(line)
		if !ok {
			continue
		}
		if current == nil {
			current = map[string]any{}
			startLine = lineNo
		}
		current[key] = inferScalar(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	flush()
	return records, nil
}

// parseKVLine splits on the first ':' or '=', whichever comes first.
func parseKVLine(line string) (string, string, bool) {
	idx := strings.IndexAny(line, ":=")
	if idx <= 0 {
		return "", "", false
	}
	key := standardizeKey(line[:idx])
	return key, strings.TrimSpace(line[idx+1:]), true
}
