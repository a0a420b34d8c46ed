package config

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxedGlobals are removed before user code runs: process control,
// filesystem access, code loading and the debug library.
var sandboxedGlobals = []string{
	"os",
	"io",
	"require",
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"debug",
	"collectgarbage",
	"module",
	"package",
}

// newSandboxedVM creates a Lua VM for evaluating starter.lua. string,
// table and math stay available; starter.lua is declarative and has no
// business touching the host.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize:       256,
		SkipOpenLibs:        false,
		IncludeGoStackTrace: false,
	})
	for _, name := range sandboxedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
