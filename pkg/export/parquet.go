package export

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// captureRow is one capture of a sweep; the sweep-wide settings are
// repeated in every row so that each row is self-contained.
type captureRow struct {
	Index       int32   `parquet:"index"`
	FreqHz      float64 `parquet:"freq_hz"`
	DACAttenDB  float64 `parquet:"dac_atten_db"`
	VGAAttenDB  float64 `parquet:"vga_atten_db"`
	DMASamples  int32   `parquet:"dma_samples"`
	DMAChannels int32   `parquet:"dma_channels"`

	// TData is the capture as little-endian int16 words.
	TData []byte `parquet:"tdata"`
}

func writeParquet(w io.Writer, rec *Record) error {
	rows := make([]captureRow, len(rec.TData))
	for idx, tdata := range rec.TData {
		raw := make([]byte, len(tdata)*2)
		for i, v := range tdata {
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
		}
		rows[idx] = captureRow{
			Index:       int32(idx),
			FreqHz:      rec.FreqsHz[idx],
			DACAttenDB:  rec.DACAttenDB,
			VGAAttenDB:  rec.VGAAttenDB,
			DMASamples:  int32(rec.DMAShape[0]),
			DMAChannels: int32(rec.DMAShape[1]),
			TData:       raw,
		}
	}

	pw := parquet.NewGenericWriter[captureRow](w, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(rows); err != nil {
		pw.Close()
		return fmt.Errorf("unable to write %d rows: %w", len(rows), err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("unable to finalize the parquet file: %w", err)
	}
	return nil
}

func readParquet(r io.ReaderAt, size int64) (*Record, error) {
	rows, err := parquet.Read[captureRow](r, size)
	if err != nil {
		return nil, fmt.Errorf("unable to read the rows: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Index < rows[j].Index
	})

	rec := &Record{}
	for idx, row := range rows {
		if int(row.Index) != idx {
			return nil, fmt.Errorf("capture #%d is missing", idx)
		}
		if idx == 0 {
			rec.DACAttenDB = row.DACAttenDB
			rec.VGAAttenDB = row.VGAAttenDB
			rec.DMAShape = [2]int{int(row.DMASamples), int(row.DMAChannels)}
		}
		tdata := make([]int16, len(row.TData)/2)
		for i := range tdata {
			tdata[i] = int16(binary.LittleEndian.Uint16(row.TData[i*2:]))
		}
		rec.TData = append(rec.TData, tdata)
		rec.FreqsHz = append(rec.FreqsHz, row.FreqHz)
	}
	return rec, nil
}
