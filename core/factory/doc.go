// Package factory provides the generic registry used to build pluggable
// modules (ledger stores, metrics sinks) from configuration. A module is a
// type string plus a map of raw settings; factories decode the settings into
// typed structs with Decode and return the concrete implementation.
//
//	reg := factory.NewRegistry[ledger.Store]()
//	reg.Register("sqlite", func(conf map[string]any) (ledger.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return NewSQLiteStore(c.Path)
//	})
//	st, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "ledger.db"}})
package factory
