package scripting

import (
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
	"github.com/cory-johannsen/rushlobby/internal/lobby"
)

const (
	hookReduceItem = "reduce_item"
	hookReduceBox  = "reduce_box"
)

// Reducer is a lobby.Reducer backed by a sandboxed Lua script. The script may
// define reduce_item(item, quantity) and reduce_box(items); each returns a
// table of attribute name to number. Undefined hooks fall back to
// lobby.SumReducer.
//
// Reducer is safe for concurrent use; calls are serialized on one LState.
type Reducer struct {
	mu       sync.Mutex
	L        *lua.LState
	limit    int
	fallback lobby.SumReducer
	logger   *zap.Logger
}

// LoadReducer reads and executes the script at path in a new sandbox.
//
// Precondition: path must name a readable Lua file; logger must be non-nil.
// Postcondition: Returns a ready Reducer, or an error if the script fails to load.
func LoadReducer(path string, instLimit int, logger *zap.Logger) (*Reducer, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading reducer %q: %w", path, err)
	}
	r, err := NewReducer(string(src), instLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("scripting: %q: %w", path, err)
	}
	return r, nil
}

// NewReducer executes source in a new sandbox.
//
// Postcondition: Returns a ready Reducer, or an error if source fails to load.
func NewReducer(source string, instLimit int, logger *zap.Logger) (*Reducer, error) {
	L := NewSandboxedState()
	if err := RunLimited(L, instLimit, func() error { return L.DoString(source) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading reducer script: %w", err)
	}
	r := &Reducer{L: L, limit: instLimit, logger: logger}
	logger.Info("lua reducer loaded",
		zap.Bool("reduce_item", r.defined(hookReduceItem)),
		zap.Bool("reduce_box", r.defined(hookReduceBox)),
	)
	return r, nil
}

func (r *Reducer) defined(hook string) bool {
	return r.L.GetGlobal(hook).Type() == lua.LTFunction
}

// ReduceItem implements lobby.Reducer.
func (r *Reducer) ReduceItem(def *catalog.Item, quantity int) (lobby.Aggregates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.defined(hookReduceItem) {
		return r.fallback.ReduceItem(def, quantity)
	}
	item := r.L.NewTable()
	item.RawSetString("type", lua.LString(def.Type))
	item.RawSetString("name", lua.LString(def.Name))
	item.RawSetString("attributes", r.numberTable(def.Attributes))
	return r.call(hookReduceItem, item, lua.LNumber(quantity))
}

// ReduceBox implements lobby.Reducer.
func (r *Reducer) ReduceBox(items []*lobby.BoxItem) (lobby.Aggregates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.defined(hookReduceBox) {
		return r.fallback.ReduceBox(items)
	}
	list := r.L.NewTable()
	for _, it := range items {
		t := r.L.NewTable()
		t.RawSetString("type", lua.LString(it.Type))
		t.RawSetString("name", lua.LString(it.Name))
		t.RawSetString("quantity", lua.LNumber(it.Quantity))
		t.RawSetString("totals", r.numberTable(it.Totals))
		list.Append(t)
	}
	return r.call(hookReduceBox, list)
}

// Close releases the Lua state.
func (r *Reducer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L.Close()
}

func (r *Reducer) numberTable(m map[string]float64) *lua.LTable {
	t := r.L.NewTable()
	for k, v := range m {
		t.RawSetString(k, lua.LNumber(v))
	}
	return t
}

// call invokes hook and converts its table result.
//
// Precondition: r.mu is held.
func (r *Reducer) call(hook string, args ...lua.LValue) (lobby.Aggregates, error) {
	err := RunLimited(r.L, r.limit, func() error {
		return r.L.CallByParam(lua.P{
			Fn:      r.L.GetGlobal(hook),
			NRet:    1,
			Protect: true,
		}, args...)
	})
	if err != nil {
		r.logger.Warn("lua reducer failed", zap.String("hook", hook), zap.Error(err))
		return nil, fmt.Errorf("scripting: %s: %w", hook, err)
	}
	ret := r.L.Get(-1)
	r.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("scripting: %s returned %s, want table", hook, ret.Type())
	}
	out := make(lobby.Aggregates)
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		n, ok := v.(lua.LNumber)
		if !ok {
			convErr = fmt.Errorf("scripting: %s: %s is %s, want number", hook, k.String(), v.Type())
			return
		}
		out[k.String()] = float64(n)
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}
