package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	presets := Builtin()

	assert.Equal(t, []string{"doordash", "gopuff", "grubhub", "instacart", "lyft", "uber", "uber eats"}, Names(presets))
	assert.Equal(t, []string{"uber eats", "ubereats", "food delivery"}, presets["uber eats"].BrandTerms)
	assert.Equal(t, models.DefaultAllowlist, presets["lyft"].Allowlist)

	presets["lyft"].Allowlist[0] = "mutated"
	assert.Equal(t, "ReferralCodes", Builtin()["lyft"].Allowlist[0])
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	content := `
Rakuten:
  brand_terms: [rakuten, cash back]
  allowlist: [ReferralCodes, beermoney]
gopuff:
  brand: gopuff
  brand_terms: [gopuff]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	presets, err := Load(path)
	require.NoError(t, err)

	rakuten := presets["rakuten"]
	assert.Equal(t, "rakuten", rakuten.Brand)
	assert.Equal(t, []string{"rakuten", "cash back"}, rakuten.BrandTerms)
	assert.Equal(t, []string{"ReferralCodes", "beermoney"}, rakuten.Allowlist)
	assert.Equal(t, models.DefaultGenericTerms, rakuten.GenericTerms)

	assert.Equal(t, []string{"gopuff"}, presets["gopuff"].BrandTerms)
	assert.Contains(t, presets, "doordash")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gopuff: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	presets, err := Load("")
	require.NoError(t, err)
	assert.Len(t, presets, 7)
}

func TestApply(t *testing.T) {
	preset := Builtin()["doordash"]

	cfg := Apply(models.RunConfig{Message: "hi"}, preset)
	assert.Equal(t, "doordash", cfg.Brand)
	assert.Equal(t, models.StringList{"doordash", "food delivery"}, cfg.BrandTerms)
	assert.Equal(t, models.StringList(models.DefaultAllowlist), cfg.Allowlist)

	custom := Apply(models.RunConfig{Brand: "mine", Allowlist: models.StringList{"OnlyHere"}}, preset)
	assert.Equal(t, "mine", custom.Brand)
	assert.Equal(t, models.StringList{"OnlyHere"}, custom.Allowlist)
}
