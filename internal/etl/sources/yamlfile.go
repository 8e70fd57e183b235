package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"dynetl/internal/etl"
)

// ── YAML File Source ────────────────────────────────────────
// Reads a YAML stream. Every document contributes one record (a mapping) or
// one record per mapping element (a sequence).

type yamlFileSource struct{}

func init() { etl.RegisterSource(&yamlFileSource{}) }

func (s *yamlFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:      "yaml_file",
		Label:     "YAML File",
		RecordTag: "yaml_block",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the YAML file; multi-document streams are supported"},
			{Key: "dataPath", Label: "Data Path", Type: "string", Required: false, Help: "Dot-separated path applied to every document"},
		},
	}
}

func (s *yamlFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	records, err := readYAMLFile(cfg)
	if err != nil {
		return nil, err
	}
	return inferSchema(records), nil
}

func (s *yamlFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return streamRecords(ctx, func() ([]etl.Record, error) { return readYAMLFile(cfg) })
}

func readYAMLFile(cfg etl.SourceConfig) ([]etl.Record, error) {
	filePath := stringOpt(cfg, "filePath")
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseYAMLDocuments(data, stringOpt(cfg, "dataPath"), filePath)
}

func parseYAMLDocuments(data []byte, dataPath, filePath string) ([]etl.Record, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var records []etl.Record
	for doc := 0; ; doc++ {
		var raw any
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse yaml document %d: %w", doc, err)
		}
		if raw == nil {
			continue
		}
		raw, err = navigatePath(raw, dataPath)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		prov := map[string]string{"file": filePath}
		records = append(records, toRecords(raw, "yaml_block", withIndex(prov, "document_index", doc))...)
	}
	return records, nil
}
