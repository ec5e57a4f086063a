package spectrogram

import (
	"github.com/xaionaro-go/rfcal/pkg/aligner"
)

const (
	Name     = "spectrogram"
	Priority = 50
)

func init() {
	aligner.Register(Name, Priority, aligner.FactoryFunc(func(params aligner.Params) (aligner.Aligner, error) {
		return New(params)
	}))
}
