package eventlog

import (
	"context"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Sequence int64  `parquet:"name=sequence, type=INT64"`
	Digest   string `parquet:"name=digest, type=UTF8, encoding=PLAIN"`
	Type     string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Module   string `parquet:"name=module, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Height   int64  `parquet:"name=height, type=INT64"`
	Actor    string `parquet:"name=actor, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Subject  string `parquet:"name=subject, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Amount   string `parquet:"name=amount, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Extra    string `parquet:"name=extra, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ExportParquet writes every record matching f to path, paging through the
// store. It returns the number of rows written.
func (s *Store) ExportParquet(ctx context.Context, path string, f Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("eventlog: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("eventlog: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := f
	page.Limit = MaxQueryLimit
	for {
		records, err := s.Query(ctx, page)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, rec := range records {
			row := &parquetRow{
				Sequence: int64(rec.Sequence),
				Digest:   rec.Digest,
				Type:     rec.Type,
				Module:   rec.Module,
				Height:   int64(rec.Height),
				Actor:    rec.Actor,
				Subject:  rec.Subject,
				Amount:   rec.Amount,
				Extra:    rec.Extra,
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("eventlog: parquet write: %w", err)
			}
			written++
			page.AfterSequence = rec.Sequence
		}
		if len(records) < MaxQueryLimit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("eventlog: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("eventlog: close parquet file: %w", err)
	}
	return written, nil
}
