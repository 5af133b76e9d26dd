package universe

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rewired-gh/spikewatch/internal/hyperliquid"
	"github.com/rewired-gh/spikewatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(assets []models.Asset) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		out = append(out, a.Name)
	}
	return out
}

func TestFilter(t *testing.T) {
	assets := []models.Asset{
		{Name: "SOL", Volume24h: 1_000_000, Price: 43.2},
		{Name: "DEAD", Volume24h: 999, Price: 1},
		{Name: "ZERO", Volume24h: 50_000, Price: 0},
		{Name: "ARB", Volume24h: 1000, Price: 0.8},
		{Name: "WIF", Volume24h: 2_000_000, Price: 2.1},
	}

	tests := []struct {
		name  string
		rules Rules
		want  []string
	}{
		{
			name:  "volume and price only",
			rules: Rules{MinVolume: 1000},
			want:  []string{"SOL", "ARB", "WIF"},
		},
		{
			name:  "strict list keeps order of input",
			rules: Rules{StrictListEnabled: true, StrictList: []string{"WIF", "SOL", "ZERO"}, MinVolume: 1000},
			want:  []string{"SOL", "WIF"},
		},
		{
			name:  "strict list enabled but empty drops everything",
			rules: Rules{StrictListEnabled: true, MinVolume: 1000},
			want:  []string{},
		},
		{
			name:  "strict list ignored when disabled",
			rules: Rules{StrictList: []string{"SOL"}, MinVolume: 0},
			want:  []string{"SOL", "DEAD", "ARB", "WIF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Filter(assets, tt.rules)))
		})
	}
}

func TestStrictListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists", "strict_list.json")
	require.NoError(t, SaveStrictList(path, []string{"ARB", "SOL"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"ARB\",\n  \"SOL\"\n]\n", string(data))

	assert.Equal(t, []string{"ARB", "SOL"}, LoadStrictList(path))
}

func TestLoadStrictList_MissingOrInvalid(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, LoadStrictList(filepath.Join(dir, "nope.json")))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	assert.Empty(t, LoadStrictList(bad))
}

func TestSelectStrict(t *testing.T) {
	infos := []hyperliquid.AssetInfo{
		{Name: "BTC", MaxLeverage: 50, MarginTableID: 56},
		{Name: "WIF", MaxLeverage: 10, MarginTableID: 51},
		{Name: "SOL", MaxLeverage: 20, MarginTableID: 54},
		{Name: "OLD", MaxLeverage: 20, MarginTableID: 54, IsDelisted: true},
		{Name: "ISO", MaxLeverage: 20, MarginTableID: 54, OnlyIsolated: true},
		{Name: "LOW", MaxLeverage: 5, MarginTableID: 54},
		{Name: "TBL", MaxLeverage: 20, MarginTableID: 50},
	}

	assert.Equal(t, []string{"SOL", "WIF"}, SelectStrict(infos, []string{"BTC", "ETH"}))
}

func TestFilter_DropsNonFiniteValues(t *testing.T) {
	assets := []models.Asset{
		{Name: "SOL", Volume24h: math.NaN(), Price: 43.2},
		{Name: "ARB", Volume24h: math.Inf(1), Price: 0.8},
		{Name: "DOGE", Volume24h: 50_000, Price: math.NaN()},
		{Name: "WIF", Volume24h: 2_000_000, Price: 2.1},
	}

	assert.Equal(t, []string{"WIF"}, names(Filter(assets, Rules{MinVolume: 1000})))
}

func TestSaveStrictList_RefusesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strict_list.json")
	require.NoError(t, SaveStrictList(path, []string{"SOL"}))

	for _, empty := range [][]string{nil, {}} {
		err := SaveStrictList(path, empty)
		assert.ErrorIs(t, err, ErrEmptyStrictList)
	}
	assert.Equal(t, []string{"SOL"}, LoadStrictList(path))
}
