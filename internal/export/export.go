// Package export writes translation history to YAML or Parquet files.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/3ltranslate/legtrans/internal/models"
)

type Format string

const (
	FormatYAML    Format = "yaml"
	FormatParquet Format = "parquet"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Row is the flat Parquet layout of a translation record
type Row struct {
	ID             string `parquet:"id"`
	UserID         string `parquet:"user_id"`
	SourceText     string `parquet:"source_text"`
	TranslatedText string `parquet:"translated_text"`
	SourceLanguage string `parquet:"source_language"`
	TargetLanguage string `parquet:"target_language"`
	CreatedAtMs    int64  `parquet:"created_at_ms"`
}

type document struct {
	ExportedAt time.Time                  `yaml:"exported_at"`
	Owner      string                     `yaml:"owner"`
	Count      int                        `yaml:"count"`
	Records    []models.TranslationRecord `yaml:"records"`
}

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Write encodes records for owner in the given format
func Write(w io.Writer, format Format, owner string, records []models.TranslationRecord) error {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(&document{
			ExportedAt: time.Now().UTC(),
			Owner:      owner,
			Count:      len(records),
			Records:    records,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write YAML: %w", err)
		}
		return nil
	case FormatParquet:
		rows := make([]Row, len(records))
		for i, r := range records {
			rows[i] = toRow(r)
		}
		if err := parquet.Write(w, rows); err != nil {
			return fmt.Errorf("failed to write parquet: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// WriteFile writes records to path, choosing the format by extension
func WriteFile(path, owner string, records []models.TranslationRecord) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Write(&buf, format, owner, records); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	slog.Info("History exported", "path", path, "format", format, "records", len(records))
	return nil
}

// ReadFile loads records previously written by WriteFile
func ReadFile(path string) ([]models.TranslationRecord, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatYAML:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read export file: %w", err)
		}
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return doc.Records, nil
	default:
		return readParquet(path)
	}
}

func readParquet(path string) ([]models.TranslationRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var records []models.TranslationRecord
	rows := make([]Row, 128)
	for {
		n, err := reader.Read(rows)
		for _, r := range rows[:n] {
			records = append(records, fromRow(r))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return records, nil
}

func toRow(r models.TranslationRecord) Row {
	return Row{
		ID:             r.ID,
		UserID:         r.OwnerID,
		SourceText:     r.SourceText,
		TranslatedText: r.TranslatedText,
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
		CreatedAtMs:    r.CreatedAt.UnixMilli(),
	}
}

func fromRow(r Row) models.TranslationRecord {
	return models.TranslationRecord{
		ID:             r.ID,
		OwnerID:        r.UserID,
		SourceText:     r.SourceText,
		TranslatedText: r.TranslatedText,
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
		CreatedAt:      time.UnixMilli(r.CreatedAtMs).UTC(),
	}
}
