package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

type Format string

const (
	FormatUndefined = Format("")
	FormatParquet   = Format("parquet")
	FormatJSONZstd  = Format("json.zst")
)

func (f Format) String() string {
	return string(f)
}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatParquet:
		return FormatParquet, nil
	case FormatJSONZstd, "json", "zst", "zstd":
		return FormatJSONZstd, nil
	}
	return FormatUndefined, fmt.Errorf("%w: unknown export format '%s'", rf.ErrInvalidParameter, s)
}

// FormatFromPath guesses the format by the file name extension.
func FormatFromPath(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".parquet"):
		return FormatParquet, nil
	case strings.HasSuffix(name, ".json.zst"), strings.HasSuffix(name, ".zst"):
		return FormatJSONZstd, nil
	}
	return FormatUndefined, fmt.Errorf("%w: unable to guess the export format of '%s'", rf.ErrInvalidParameter, path)
}

func Write(ctx context.Context, w io.Writer, rec *Record, format Format) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	switch format {
	case FormatParquet:
		return writeParquet(w, rec)
	case FormatJSONZstd:
		return writeJSONZstd(w, rec)
	}
	return fmt.Errorf("%w: unknown export format '%s'", rf.ErrInvalidParameter, format)
}

func Read(r io.ReaderAt, size int64, format Format) (*Record, error) {
	var (
		rec *Record
		err error
	)
	switch format {
	case FormatParquet:
		rec, err = readParquet(r, size)
	case FormatJSONZstd:
		rec, err = readJSONZstd(io.NewSectionReader(r, 0, size))
	default:
		return nil, fmt.Errorf("%w: unknown export format '%s'", rf.ErrInvalidParameter, format)
	}
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("the record is inconsistent: %w", err)
	}
	return rec, nil
}

func resolveFormat(path string, format Format) (Format, error) {
	if format != FormatUndefined {
		return format, nil
	}
	return FormatFromPath(path)
}

// WriteFile writes the record; FormatUndefined means the format is given
// by the extension of path.
func WriteFile(ctx context.Context, path string, rec *Record, format Format) (_err error) {
	format, err := resolveFormat(path, format)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create '%s': %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && _err == nil {
			_err = fmt.Errorf("unable to close '%s': %w", path, err)
		}
	}()

	wc := datacounter.NewWriterCounter(f)
	if err := Write(ctx, wc, rec, format); err != nil {
		return fmt.Errorf("unable to write '%s': %w", path, err)
	}
	logger.Debugf(ctx, "wrote %d captures to '%s' (%s): %.3fMiB", len(rec.TData), path, format, float64(wc.Count())/(1<<20))
	return nil
}

func ReadFile(ctx context.Context, path string, format Format) (*Record, error) {
	format, err := resolveFormat(path, format)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("unable to stat '%s': %w", path, err)
	}
	rec, err := Read(f, st.Size(), format)
	if err != nil {
		return nil, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	logger.Debugf(ctx, "read %d captures from '%s' (%s)", len(rec.TData), path, format)
	return rec, nil
}
