package presets

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/palma21/referral-drip-bot/internal/models"
	"gopkg.in/yaml.v3"
)

var builtinTerms = map[string][]string{
	"gopuff":    {"gopuff", "alcohol delivery", "grocery delivery"},
	"uber eats": {"uber eats", "ubereats", "food delivery"},
	"grubhub":   {"grubhub", "food delivery"},
	"doordash":  {"doordash", "food delivery"},
	"instacart": {"instacart", "grocery delivery"},
	"uber":      {"uber", "ride share", "rideshare"},
	"lyft":      {"lyft", "ride share", "rideshare"},
}

// Builtin returns the presets that ship with the bot
func Builtin() map[string]models.Preset {
	out := make(map[string]models.Preset, len(builtinTerms))
	for brand, terms := range builtinTerms {
		out[brand] = models.Preset{
			Brand:        brand,
			BrandTerms:   append([]string(nil), terms...),
			Allowlist:    append([]string(nil), models.DefaultAllowlist...),
			GenericTerms: append([]string(nil), models.DefaultGenericTerms...),
		}
	}
	return out
}

// Load returns the built-in presets overlaid with those in path.
// An empty path yields the built-ins only.
func Load(path string) (map[string]models.Preset, error) {
	out := Builtin()
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}

	var file map[string]models.Preset
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets file %s: %w", path, err)
	}

	for name, preset := range file {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if preset.Brand == "" {
			preset.Brand = name
		}
		if len(preset.BrandTerms) == 0 {
			preset.BrandTerms = []string{preset.Brand}
		}
		if len(preset.Allowlist) == 0 {
			preset.Allowlist = append([]string(nil), models.DefaultAllowlist...)
		}
		if len(preset.GenericTerms) == 0 {
			preset.GenericTerms = append([]string(nil), models.DefaultGenericTerms...)
		}
		out[name] = preset
	}

	return out, nil
}

// Names returns the preset names in sorted order
func Names(presets map[string]models.Preset) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply fills the discovery fields of cfg from preset where cfg leaves them empty
func Apply(cfg models.RunConfig, preset models.Preset) models.RunConfig {
	if cfg.Brand == "" {
		cfg.Brand = preset.Brand
	}
	if len(cfg.BrandTerms) == 0 {
		cfg.BrandTerms = append(models.StringList(nil), preset.BrandTerms...)
	}
	if len(cfg.Allowlist) == 0 {
		cfg.Allowlist = append(models.StringList(nil), preset.Allowlist...)
	}
	if len(cfg.GenericTerms) == 0 {
		cfg.GenericTerms = append(models.StringList(nil), preset.GenericTerms...)
	}
	return cfg
}
