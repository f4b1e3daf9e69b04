package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Type       string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Market     string `parquet:"name=market, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Account    string `parquet:"name=account, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Attributes string `parquet:"name=attributes, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ExportParquet writes every record after the given sequence to path and
// returns the number of rows written.
func (a *Archive) ExportParquet(ctx context.Context, path string, after uint64) (int, error) {
	records, err := a.List(ctx, after, 0)
	if err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("archive: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("archive: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range records {
		attrs, err := json.Marshal(record.Attributes)
		if err != nil {
			file.Close()
			return 0, fmt.Errorf("archive: encode attributes: %w", err)
		}
		row := &parquetRow{
			Sequence:   int64(record.Sequence),
			Type:       record.Type,
			Market:     record.Attributes["market"],
			Account:    record.Attributes["account"],
			Attributes: string(attrs),
		}
		if err := pw.Write(row); err != nil {
			file.Close()
			return 0, fmt.Errorf("archive: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("archive: finalize parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("archive: close parquet: %w", err)
	}
	return len(records), nil
}
