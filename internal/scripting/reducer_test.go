package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/scripting"
)

var _ lobby.Reducer = (*scripting.Reducer)(nil)

var iron = &catalog.Item{
	Type:       catalog.ItemTypeOre,
	Name:       "iron",
	Attributes: map[string]float64{"weight": 2, "value": 5},
}

const weightCapScript = `
function reduce_item(item, quantity)
	local out = {}
	for k, v in pairs(item.attributes) do
		out[k] = v * quantity
	end
	out.units = quantity
	return out
end

function reduce_box(items)
	local out = { weight = 0, units = 0, stacks = #items }
	for _, it in ipairs(items) do
		out.weight = out.weight + (it.totals.weight or 0)
		out.units = out.units + it.quantity
	end
	return out
end
`

func TestReducer_Hooks(t *testing.T) {
	r, err := scripting.NewReducer(weightCapScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReduceItem(iron, 3)
	require.NoError(t, err)
	assert.Equal(t, lobby.Aggregates{"weight": 6, "value": 15, "units": 3}, got)

	box, err := r.ReduceBox([]*lobby.BoxItem{
		{Name: "iron", Quantity: 3, Totals: lobby.Aggregates{"weight": 6}},
		{Name: "wheat", Quantity: 2, Totals: lobby.Aggregates{"weight": 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, lobby.Aggregates{"weight": 7, "units": 5, "stacks": 2}, box)
}

func TestReducer_FallsBackToSum(t *testing.T) {
	r, err := scripting.NewReducer(`-- no hooks`, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReduceItem(iron, 2)
	require.NoError(t, err)
	assert.Equal(t, lobby.Aggregates{"weight": 4, "value": 10}, got)
}

func TestReducer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"runtime error", `function reduce_item() error("boom") end`},
		{"non table", `function reduce_item() return 7 end`},
		{"non number value", `function reduce_item() return { weight = "heavy" } end`},
		{"runaway", `function reduce_item() while true do end end`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := scripting.NewReducer(tt.source, 1000, zaptest.NewLogger(t))
			require.NoError(t, err)
			defer r.Close()
			_, err = r.ReduceItem(iron, 1)
			assert.Error(t, err)
		})
	}
}

func TestReducer_LoadFailures(t *testing.T) {
	_, err := scripting.NewReducer(`function (`, 0, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = scripting.LoadReducer(filepath.Join(t.TempDir(), "missing.lua"), 0, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestLoadReducer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reducer.lua")
	require.NoError(t, os.WriteFile(path, []byte(weightCapScript), 0644))
	r, err := scripting.LoadReducer(path, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReduceItem(iron, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(1), got["units"])
}

func TestReducer_UsedBySession(t *testing.T) {
	r, err := scripting.NewReducer(weightCapScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer r.Close()
	settings, err := catalog.New(nil, []*catalog.Item{iron})
	require.NoError(t, err)

	s, _ := lobby.NewSession("Alice", settings, false, r)
	_, err = s.AddBoxItem("Alice", catalog.ItemTypeOre, "iron")
	require.NoError(t, err)
	q := 4
	require.NoError(t, s.UpdateBoxItemProps("Alice", "iron", lobby.BoxItemProps{Quantity: &q}))

	alice, _, _ := s.FindPlayer("Alice")
	assert.Equal(t, lobby.Aggregates{"weight": 8, "units": 4, "stacks": 1}, alice.Rucksack.Totals)
}

func TestReducer_ConcurrentCalls(t *testing.T) {
	r, err := scripting.NewReducer(weightCapScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			got, err := r.ReduceItem(iron, q)
			assert.NoError(t, err)
			assert.Equal(t, float64(2*q), got["weight"])
		}(i)
	}
	wg.Wait()
}
