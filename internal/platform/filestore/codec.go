// Package filestore は検証済みバッチを行指向（CSV）と列指向（Parquet）のファイルに書き出し、
// 取り込み用に CSV/JSON/Parquet ファイルを読み戻します。
package filestore

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
)

// Codec はファイルの圧縮方式です。
type Codec string

const (
	CodecGzip   Codec = "gzip"
	CodecZstd   Codec = "zstd"
	CodecSnappy Codec = "snappy"
	CodecNone   Codec = "none"
)

// ParseCodec は設定値を Codec に変換します。空文字は gzip として扱います。
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CodecGzip, nil
	case CodecGzip, CodecZstd, CodecSnappy, CodecNone:
		return c, nil
	}
	return "", fmt.Errorf("unsupported compression %q (use gzip, zstd, snappy or none)", s)
}

// CSVExt は行ファイルの拡張子を返します。
func (c Codec) CSVExt() string {
	switch c {
	case CodecZstd:
		return ".csv.zst"
	case CodecSnappy:
		return ".csv.sz"
	case CodecNone:
		return ".csv"
	}
	return ".csv.gz"
}

func (c Codec) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecZstd:
		return zstd.NewWriter(w)
	case CodecSnappy:
		return s2.NewWriter(w, s2.WriterSnappyCompat()), nil
	case CodecNone:
		return nopWriteCloser{w}, nil
	}
	return gzip.NewWriter(w), nil
}

// parquetOption は同じ圧縮方式を Parquet のページコーデックに対応付けます。
func (c Codec) parquetOption() parquet.WriterOption {
	switch c {
	case CodecZstd:
		return parquet.Compression(&parquet.Zstd)
	case CodecSnappy:
		return parquet.Compression(&parquet.Snappy)
	case CodecNone:
		return parquet.Compression(&parquet.Uncompressed)
	}
	return parquet.Compression(&parquet.Gzip)
}

// codecFromPath は拡張子から圧縮方式を判定し、圧縮拡張子を除いたパスと共に返します。
func codecFromPath(path string) (Codec, string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return CodecGzip, strings.TrimSuffix(path, filepath.Ext(path))
	case ".zst":
		return CodecZstd, strings.TrimSuffix(path, filepath.Ext(path))
	case ".sz":
		return CodecSnappy, strings.TrimSuffix(path, filepath.Ext(path))
	}
	return CodecNone, path
}

func newDecompressor(r io.Reader, c Codec) (io.ReadCloser, error) {
	switch c {
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case CodecSnappy:
		return io.NopCloser(s2.NewReader(r)), nil
	}
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
