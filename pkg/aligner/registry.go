package aligner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xaionaro-go/rfcal/pkg/rf"
)

type factoryWithPriority struct {
	Name     string
	Priority int
	Factory
}

var (
	factoryRegistry       = map[string]factoryWithPriority{}
	factoryRegistryLocker sync.Mutex
)

// Register makes a coarse alignment policy selectable by name. The policy
// with the highest priority is the default one.
func Register(
	name string,
	priority int,
	factory Factory,
) {
	factoryRegistryLocker.Lock()
	defer factoryRegistryLocker.Unlock()
	if _, ok := factoryRegistry[name]; ok {
		panic(fmt.Errorf("there is already registered a coarse alignment policy %q", name))
	}
	factoryRegistry[name] = factoryWithPriority{
		Name:     name,
		Priority: priority,
		Factory:  factory,
	}
}

func sortedFactories() []factoryWithPriority {
	factoryRegistryLocker.Lock()
	defer factoryRegistryLocker.Unlock()
	var factories []factoryWithPriority
	for _, factory := range factoryRegistry {
		factories = append(factories, factory)
	}
	sort.Slice(factories, func(i, j int) bool {
		if factories[i].Priority != factories[j].Priority {
			return factories[i].Priority > factories[j].Priority
		}
		return factories[i].Name < factories[j].Name
	})
	return factories
}

// Names returns the registered policies, the default one first.
func Names() []string {
	var names []string
	for _, factory := range sortedFactories() {
		names = append(names, factory.Name)
	}
	return names
}

// New instantiates the named policy; an empty name selects the default.
func New(name string, params Params) (Aligner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	factories := sortedFactories()
	if len(factories) == 0 {
		return nil, fmt.Errorf("%w: no coarse alignment policy is registered", rf.ErrInvalidParameter)
	}
	if name == "" {
		return factories[0].NewAligner(params)
	}
	for _, factory := range factories {
		if factory.Name == name {
			return factory.NewAligner(params)
		}
	}
	return nil, fmt.Errorf("%w: unknown coarse alignment policy %q, known: %v", rf.ErrInvalidParameter, name, Names())
}
