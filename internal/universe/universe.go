// Package universe decides which assets are analysed each cycle.
package universe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rewired-gh/spikewatch/internal/hyperliquid"
	"github.com/rewired-gh/spikewatch/internal/models"
)

// Rules configures candidate filtering.
type Rules struct {
	StrictListEnabled bool
	StrictList        []string
	MinVolume         float64
}

// Filter keeps assets on the strict list (when enabled) with at least
// MinVolume of finite 24h volume and a positive finite price. Input order is
// preserved.
func Filter(assets []models.Asset, rules Rules) []models.Asset {
	allowed := make(map[string]bool, len(rules.StrictList))
	for _, name := range rules.StrictList {
		allowed[name] = true
	}

	filtered := make([]models.Asset, 0, len(assets))
	for _, a := range assets {
		if rules.StrictListEnabled && !allowed[a.Name] {
			continue
		}
		if a.Validate() != nil {
			continue
		}
		if !(a.Volume24h >= rules.MinVolume) || !(a.Price > 0) {
			continue
		}
		filtered = append(filtered, a)
	}
	return filtered
}

// LoadStrictList reads a JSON array of asset names. A missing or unreadable
// file yields an empty list.
func LoadStrictList(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{}
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return []string{}
	}
	return names
}

// ErrEmptyStrictList is returned instead of writing a list that would
// disable every asset.
var ErrEmptyStrictList = errors.New("strict list is empty")

// SaveStrictList writes names as an indented JSON array. An empty list is
// rejected and the existing file is left untouched.
func SaveStrictList(path string, names []string) error {
	if len(names) == 0 {
		return ErrEmptyStrictList
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode strict list: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write strict list: %w", err)
	}
	return nil
}

const (
	strictMinLeverage    = 10
	strictMinMarginTable = 51
)

// SelectStrict returns, sorted, the names of assets that are listed, allow
// cross margin, offer at least 10x leverage and sit on margin table 51 or
// above.
func SelectStrict(infos []hyperliquid.AssetInfo, excluded []string) []string {
	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[strings.ToUpper(name)] = true
	}

	var names []string
	for _, info := range infos {
		if skip[strings.ToUpper(info.Name)] {
			continue
		}
		if info.IsDelisted || info.OnlyIsolated {
			continue
		}
		if info.MaxLeverage >= strictMinLeverage && info.MarginTableID >= strictMinMarginTable {
			names = append(names, info.Name)
		}
	}
	sort.Strings(names)
	return names
}
