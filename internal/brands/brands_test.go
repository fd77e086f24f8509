package brands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBrands = `
brands:
  - id: acme
    name: Acme Corp
    keywords:
      - id: kw-1
        text: Acme
        type: own_brand
      - id: kw-2
        text: Globex
        type: competitor
    channels:
      slack:
        enabled: true
        webhook_url: https://hooks.slack.com/services/T000/B000/XXX
      email:
        enabled: true
        recipients: [alerts@acme.example]
  - id: initech
    name: Initech
    keywords:
      - id: kw-3
        text: TPS report
`

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "brands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		expectError string
	}{
		{name: "Valid document", content: validBrands},
		{name: "No brands", content: "brands: []", expectError: "no brands defined"},
		{name: "Malformed YAML", content: "brands: [", expectError: "failed to parse YAML"},
		{name: "Unknown field", content: "brands:\n  - id: a\n    nam: typo\n", expectError: "failed to parse YAML"},
		{
			name:        "Missing keywords",
			content:     "brands:\n  - id: a\n    name: A\n",
			expectError: "Keywords is required",
		},
		{
			name:        "Invalid keyword type",
			content:     "brands:\n  - id: a\n    name: A\n    keywords:\n      - {id: k, text: t, type: partner}\n",
			expectError: "must be one of",
		},
		{
			name:        "Invalid webhook URL",
			content:     "brands:\n  - id: a\n    name: A\n    keywords: [{id: k, text: t}]\n    channels:\n      teams: {enabled: true, webhook_url: not-a-url}\n",
			expectError: "must be a valid URL",
		},
		{
			name:        "Invalid email",
			content:     "brands:\n  - id: a\n    name: A\n    keywords: [{id: k, text: t}]\n    channels:\n      email: {enabled: true, recipients: [nope]}\n",
			expectError: "must be a valid email",
		},
		{
			name:        "Enabled channel without destination",
			content:     "brands:\n  - id: a\n    name: A\n    keywords: [{id: k, text: t}]\n    channels:\n      slack: {enabled: true}\n",
			expectError: "slack is enabled without a webhook_url",
		},
		{
			name:        "Pager without routing key",
			content:     "brands:\n  - id: a\n    name: A\n    keywords: [{id: k, text: t}]\n    channels:\n      pager: {enabled: true}\n",
			expectError: "pager is enabled without a routing_key",
		},
		{
			name:        "Duplicate brand IDs",
			content:     "brands:\n  - {id: a, name: A, keywords: [{id: k, text: t}]}\n  - {id: a, name: B, keywords: [{id: k, text: t}]}\n",
			expectError: "duplicate brand id",
		},
		{
			name:        "Blank keyword text",
			content:     "brands:\n  - {id: a, name: A, keywords: [{id: k, text: '  '}]}\n",
			expectError: "keywords are blank",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brands, err := Parse([]byte(tt.content))
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Len(t, brands, 2)
		})
	}
}

func TestFileProvider_GetAndList(t *testing.T) {
	path := writeFile(t, t.TempDir(), validBrands)

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Reloads())

	ctx := context.Background()
	brand, err := p.GetBrand(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", brand.Name)
	assert.Equal(t, []string{"Acme", "Globex"}, brand.KeywordTexts())
	assert.Equal(t, models.KeywordCompetitor, brand.Keywords[1].Type)
	assert.True(t, brand.Channels.Slack.Enabled)
	assert.Equal(t, []string{"alerts@acme.example"}, brand.Channels.Email.Recipients)

	_, err = p.GetBrand(ctx, "unknown")
	assert.ErrorIs(t, err, ErrBrandNotFound)

	all, err := p.ListBrands(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "acme", all[0].ID)
	assert.Equal(t, "initech", all[1].ID)
}

func TestFileProvider_ReturnsCopies(t *testing.T) {
	path := writeFile(t, t.TempDir(), validBrands)
	p, err := NewFileProvider(path)
	require.NoError(t, err)

	brand, err := p.GetBrand(context.Background(), "acme")
	require.NoError(t, err)
	brand.Keywords[0].Text = "mutated"

	again, err := p.GetBrand(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Keywords[0].Text)
}

func TestNewFileProvider_Errors(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, t.TempDir(), "brands: []")
	_, err = NewFileProvider(path)
	assert.Error(t, err)
}

func TestFileProvider_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, validBrands)
	p, err := NewFileProvider(path)
	require.NoError(t, err)

	writeFile(t, dir, "brands: [")
	assert.Error(t, p.Reload())

	all, err := p.ListBrands(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(1), p.Reloads())
}

func TestFileProvider_WatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, validBrands)
	p, err := NewFileProvider(path)
	require.NoError(t, err)
	p.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Watch(ctx))

	writeFile(t, dir, "brands:\n  - {id: solo, name: Solo, keywords: [{id: k, text: solo}]}\n")

	assert.Eventually(t, func() bool {
		_, err := p.GetBrand(context.Background(), "solo")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	_, err = p.GetBrand(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrBrandNotFound)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(
		models.Brand{ID: "b1", Name: "One", Keywords: []models.Keyword{{ID: "k", Text: "one"}}},
		models.Brand{ID: "b2", Name: "Two"},
	)

	brand, err := p.GetBrand(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "One", brand.Name)

	_, err = p.GetBrand(context.Background(), "b3")
	assert.ErrorIs(t, err, ErrBrandNotFound)

	all, err := p.ListBrands(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
