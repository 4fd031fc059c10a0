package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docschat/internal/pkg/errs"
)

func TestRegistry_Get(t *testing.T) {
	r := testRegistry()

	d, err := r.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", d.Name)

	// 域名大小写和空白不敏感
	d, err = r.Get("  Docs ")
	require.NoError(t, err)
	assert.Equal(t, "docs", d.Name)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := testRegistry()

	_, err := r.Get("nope")
	require.Error(t, err)
	var de *errs.DomainError
	assert.ErrorAs(t, err, &de)
	assert.Equal(t, "nope", de.Domain)
}

func TestRegistry_GetInactive(t *testing.T) {
	r := testRegistry()
	r.Upsert(&Domain{Name: "archived", DisplayName: "Archived", Active: false})

	_, err := r.Get("archived")
	var de *errs.DomainError
	assert.ErrorAs(t, err, &de)
}

func TestRegistry_EnsureProvisions(t *testing.T) {
	r := testRegistry()

	d := r.Ensure("Guides")
	assert.Equal(t, "guides", d.Name)
	assert.Equal(t, "Guides", d.DisplayName)
	assert.True(t, d.Active)
	assert.NotEmpty(t, d.SystemPrompt)

	// 再次 Ensure 返回同一个域
	again := r.Ensure("guides")
	assert.Same(t, d, again)

	// 自动创建后可以正常查询
	got, err := r.Get("guides")
	require.NoError(t, err)
	assert.Same(t, d, got)
}

func TestRegistry_ListActiveSorted(t *testing.T) {
	r := testRegistry()
	r.Upsert(&Domain{Name: "api", DisplayName: "API", Active: true})
	r.Upsert(&Domain{Name: "zzz", DisplayName: "Zzz", Active: true})
	r.Upsert(&Domain{Name: "off", DisplayName: "Off", Active: false})

	names := []string{}
	for _, d := range r.ListActive() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"api", "docs", "zzz"}, names)
}
