package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable installs a read-only global "platform" table describing
// info into L. Call it before running user configuration code.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()

	L.SetField(t, "os", lua.LString(info.OS))
	L.SetField(t, "arch", lua.LString(info.Arch))
	L.SetField(t, "arch_raw", lua.LString(info.ArchRaw))
	L.SetField(t, "key", lua.LString(info.Key()))

	L.SetField(t, "is_linux", lua.LBool(info.IsLinux()))
	L.SetField(t, "is_macos", lua.LBool(info.IsMacOS()))
	L.SetField(t, "is_windows", lua.LBool(info.IsWindows()))

	if info.IsLinux() && info.Distro != "" {
		distro := L.NewTable()
		L.SetField(distro, "id", lua.LString(info.Distro))
		L.SetField(distro, "family", lua.LString(info.Family))
		L.SetField(distro, "version", lua.LString(info.Release))
		L.SetField(t, "distro", distro)
	} else {
		L.SetField(t, "distro", lua.LNil)
	}

	// when(cond, value) returns value if cond holds, nil otherwise. Lists
	// built with it skip the nil holes during extraction.
	L.SetField(t, "when", L.NewFunction(func(L *lua.LState) int {
		if L.CheckBool(1) {
			L.Push(L.Get(2))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))

	L.SetGlobal("platform", readOnly(L, t))
	return nil
}

// readOnly wraps table in an empty proxy whose metatable forwards reads and
// rejects writes.
func readOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
