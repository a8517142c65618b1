package sandbox

import (
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"cleansynth/internal/table"
)

// TablePath is the import path transforms see for the table package.
const TablePath = "cleansynth/table"

// stdlibAllowed lists the standard packages bound into every interpreter.
var stdlibAllowed = []string{
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
}

// tableSymbols exposes the table package to interpreted code.
var tableSymbols = interp.Exports{
	TablePath + "/table": {
		// types
		"Column":   reflect.ValueOf((*table.Column)(nil)),
		"Frame":    reflect.ValueOf((*table.Frame)(nil)),
		"KeyError": reflect.ValueOf((*table.KeyError)(nil)),
		"Kind":     reflect.ValueOf((*table.Kind)(nil)),

		// kinds
		"Bool":   reflect.ValueOf(table.Bool),
		"Float":  reflect.ValueOf(table.Float),
		"Int":    reflect.ValueOf(table.Int),
		"String": reflect.ValueOf(table.String),
		"Time":   reflect.ValueOf(table.Time),

		// helpers
		"Convert":   reflect.ValueOf(table.Convert),
		"Equal":     reflect.ValueOf(table.Equal),
		"IsNull":    reflect.ValueOf(table.IsNull),
		"Less":      reflect.ValueOf(table.Less),
		"New":       reflect.ValueOf(table.New),
		"ParseTime": reflect.ValueOf(table.ParseTime),
		"ToBool":    reflect.ValueOf(table.ToBool),
		"ToFloat":   reflect.ValueOf(table.ToFloat),
		"ToInt":     reflect.ValueOf(table.ToInt),
		"ToString":  reflect.ValueOf(table.ToString),
		"ToTime":    reflect.ValueOf(table.ToTime),
	},
}

// Bindings returns the import paths pre-loaded into each interpreter.
func Bindings() []string {
	return append([]string{TablePath}, stdlibAllowed...)
}

// symbols assembles the only packages an interpreter can resolve.
func symbols() interp.Exports {
	out := make(interp.Exports, len(stdlibAllowed)+1)
	for _, pkg := range stdlibAllowed {
		key := pkg + "/" + pkg
		if syms, ok := stdlib.Symbols[key]; ok {
			out[key] = syms
		}
	}
	for k, v := range tableSymbols {
		out[k] = v
	}
	return out
}
