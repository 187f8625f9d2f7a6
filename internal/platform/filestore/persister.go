package filestore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
)

var (
	_ usecase.FilePersister = (*CSVPersister)(nil)
	_ usecase.FilePersister = (*ParquetPersister)(nil)
)

// CSVPersister はバッチをヘッダー付きの圧縮 CSV として書き出します。
type CSVPersister struct {
	base  string
	codec Codec
}

// NewCSVPersister は base ディレクトリ以下に codec で圧縮した CSV を書き出す CSVPersister を生成します。
func NewCSVPersister(base string, codec Codec) *CSVPersister {
	return &CSVPersister{base: base, codec: codec}
}

func (p *CSVPersister) Format() string { return FormatCSV }

// Persist はファイルを上書きで書き出し、そのパスを返します。
func (p *CSVPersister) Persist(ctx context.Context, key entity.FileKey, batch entity.Batch) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := tableFor(batch)
	if err != nil {
		return "", err
	}

	path := Path(p.base, FormatCSV, key, p.codec.CSVExt())
	err = WriteFileAtomic(path, func(w io.Writer) error {
		cw, err := p.codec.newWriter(w)
		if err != nil {
			return fmt.Errorf("open %s writer: %w", p.codec, err)
		}
		if err := writeCSV(cw, t); err != nil {
			_ = cw.Close()
			return err
		}
		return cw.Close()
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func writeCSV(w io.Writer, t table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.records()); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	return nil
}

// ParquetPersister はバッチを資産クラスごとのスキーマを持つ Parquet ファイルとして書き出します。
type ParquetPersister struct {
	base  string
	codec Codec
}

// NewParquetPersister は base ディレクトリ以下に Parquet を書き出す ParquetPersister を生成します。
// 圧縮方式は CSV と同じ設定値をページコーデックに対応付けて使います。
func NewParquetPersister(base string, codec Codec) *ParquetPersister {
	return &ParquetPersister{base: base, codec: codec}
}

func (p *ParquetPersister) Format() string { return FormatParquet }

// Persist はファイルを上書きで書き出し、そのパスを返します。
func (p *ParquetPersister) Persist(ctx context.Context, key entity.FileKey, batch entity.Batch) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := tableFor(batch)
	if err != nil {
		return "", err
	}

	path := Path(p.base, FormatParquet, key, "."+FormatParquet)
	err = WriteFileAtomic(path, func(w io.Writer) error {
		return t.writeParquet(w, p.codec.parquetOption())
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
