package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

func writeJSONZstd(w io.Writer, rec *Record) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("unable to initialize the zstd encoder: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(rec); err != nil {
		zw.Close()
		return fmt.Errorf("unable to encode the record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to flush the zstd stream: %w", err)
	}
	return nil
}

func readJSONZstd(r io.Reader) (*Record, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the zstd decoder: %w", err)
	}
	defer zr.Close()
	var rec Record
	if err := json.NewDecoder(zr).Decode(&rec); err != nil {
		return nil, fmt.Errorf("unable to decode the record: %w", err)
	}
	return &rec, nil
}
