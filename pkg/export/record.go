// Package export stores frequency sweep captures for offline analysis.
package export

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Record is a frequency sweep: one raw capture per requested frequency
// together with the settings they were taken with.
type Record struct {
	// TData holds the captures as the DMA engine delivers them:
	// interleaved int16 samples of DMAShape[1] channels.
	TData [][]int16 `json:"tdata"`

	FreqsHz []float64 `json:"freqs_hz"`

	// DMAShape is (samples per channel, channels).
	DMAShape [2]int `json:"dma_shape"`

	DACAttenDB float64 `json:"dac_atten_dB"`
	VGAAttenDB float64 `json:"vga_atten_dB"`
}

func (r *Record) Validate() error {
	var result *multierror.Error
	if len(r.TData) != len(r.FreqsHz) {
		result = multierror.Append(result, fmt.Errorf("%w: %d captures for %d frequencies", rf.ErrInvalidParameter, len(r.TData), len(r.FreqsHz)))
	}
	if r.DMAShape[0] <= 0 || r.DMAShape[1] <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: invalid DMA shape %v", rf.ErrInvalidParameter, r.DMAShape))
	}
	for idx, tdata := range r.TData {
		if len(tdata) != r.DMAShape[0]*r.DMAShape[1] {
			result = multierror.Append(result, fmt.Errorf("%w: capture #%d has %d samples instead of %d", rf.ErrInvalidParameter, idx, len(tdata), r.DMAShape[0]*r.DMAShape[1]))
		}
	}
	return result.ErrorOrNil()
}

// Frame returns capture #idx as a two-channel frame sharing the memory
// of the record.
func (r *Record) Frame(idx int) (*capture.Frame, error) {
	if idx < 0 || idx >= len(r.TData) {
		return nil, fmt.Errorf("%w: capture #%d does not exist, the record has %d", rf.ErrInvalidParameter, idx, len(r.TData))
	}
	if r.DMAShape[1] != rf.NumChannels {
		return nil, fmt.Errorf("%w: the record has %d channels, expected %d", rf.ErrInvalidParameter, r.DMAShape[1], rf.NumChannels)
	}
	return &capture.Frame{Samples: r.TData[idx]}, nil
}
