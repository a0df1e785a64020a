package ledger

import "github.com/kilianp07/gridmarket/core/factory"

var storeRegistry = factory.NewRegistry[Store]()

func init() {
	_ = RegisterStore("memory", func(map[string]any) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// RegisterStore adds a ledger store factory identified by name.
func RegisterStore(name string, f factory.Factory[Store]) error {
	return storeRegistry.Register(name, f)
}

// NewStores creates the configured stores. An empty configuration yields a
// single MemoryStore.
func NewStores(cfgs []factory.ModuleConfig) ([]Store, error) {
	if len(cfgs) == 0 {
		return []Store{NewMemoryStore()}, nil
	}
	return storeRegistry.CreateAll(cfgs)
}
