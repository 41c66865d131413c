package filter

import (
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/simpletile-go/internal/logger"
)

// LuaFilter runs a user script that defines
//
//	function accept(tags) ... return true/false end
//
// tags is a Lua table of the way's tags. A missing or non-boolean return
// value rejects the way; a runtime error rejects it and is logged.
type LuaFilter struct {
	mu       sync.Mutex
	L        *lua.LState
	accept   lua.LValue
	failures int
}

// NewLuaFilterFile loads a filter script from path
func NewLuaFilterFile(path string) (*LuaFilter, error) {
	f := newLuaFilter()
	if err := f.L.DoFile(path); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to load Lua filter: %w", err)
	}
	if err := f.bind(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewLuaFilterString loads a filter script from source
func NewLuaFilterString(code string) (*LuaFilter, error) {
	f := newLuaFilter()
	if err := f.L.DoString(code); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to load Lua filter: %w", err)
	}
	if err := f.bind(); err != nil {
		return nil, err
	}
	return f, nil
}

func newLuaFilter() *LuaFilter {
	return &LuaFilter{L: lua.NewState(lua.Options{SkipOpenLibs: false})}
}

func (f *LuaFilter) bind() error {
	fn := f.L.GetGlobal("accept")
	if fn.Type() != lua.LTFunction {
		f.Close()
		return errors.New("lua filter does not define function accept(tags)")
	}
	f.accept = fn
	return nil
}

// Match implements Matcher. Calls are serialized, the Lua state is not
// safe for concurrent use.
func (f *LuaFilter) Match(tags map[string]string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	tbl := f.L.NewTable()
	for k, v := range tags {
		tbl.RawSetString(k, lua.LString(v))
	}

	err := f.L.CallByParam(lua.P{
		Fn:      f.accept,
		NRet:    1,
		Protect: true,
	}, tbl)
	if err != nil {
		f.failures++
		if f.failures <= 10 {
			logger.Named("filter").Warn("Lua filter failed", zap.Error(err))
		}
		return false
	}

	ret := f.L.Get(-1)
	f.L.Pop(1)
	return lua.LVAsBool(ret)
}

// Errors returns how many calls raised a Lua error
func (f *LuaFilter) Errors() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}

// Close releases the Lua state
func (f *LuaFilter) Close() {
	f.L.Close()
}
