// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[power.Source]()
//	reg.Register("static", func(conf map[string]any) (power.Source, error) {
//	    var c struct{ SolarKW float64 `json:"solar_kw"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return staticSource(c.SolarKW), nil
//	})
//	src, err := reg.Create(factory.ModuleConfig{Type: "static", Conf: map[string]any{"solar_kw": 4.2}})
package factory
