package zerocrossing

import (
	"github.com/xaionaro-go/rfcal/pkg/aligner"
)

const (
	Name     = "zerocrossing"
	Priority = 100
)

func init() {
	aligner.Register(Name, Priority, aligner.FactoryFunc(func(params aligner.Params) (aligner.Aligner, error) {
		return New(params), nil
	}))
}
