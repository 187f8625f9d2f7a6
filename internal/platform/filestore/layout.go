package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"market_ingest/internal/feature/marketdata/domain/entity"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"

	// MetadataFile は取得メタデータのファイル名です。
	MetadataFile = "metadata.json"
)

// EnsureLayout は base 以下に {asset}/{csv|parquet} のディレクトリ構成を作成します。
func EnsureLayout(base string) error {
	for _, ac := range entity.FileAssetClasses {
		for _, format := range []string{FormatCSV, FormatParquet} {
			dir := filepath.Join(base, string(ac), format)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
	}
	return nil
}

// Path は {base}/{asset}/{format}/{symbol}_{YYYYMMDD}_{YYYYMMDD}{ext} を返します。
func Path(base, format string, key entity.FileKey, ext string) string {
	return filepath.Join(base, string(key.AssetClass), format, key.BaseName()+ext)
}

// WriteFileAtomic は同じディレクトリの一時ファイルに書き込んでから path にリネームします。
// 既存のファイルは置き換えられ、途中で失敗した場合は元のファイルが残ります。
func WriteFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
