package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "minimal", content: `{"name":"a","dependencies":{}}`},
		{name: "full", content: `{"name":"app","version":"1.0.0","dependencies":{"react":"^18.2.0"},"devDependencies":{"vite":"^5.0.0"}}`},
		{name: "not json", content: `not json`, wantErr: true},
		{name: "array", content: `[1,2]`, wantErr: true},
		{name: "null", content: `null`, wantErr: true},
		{name: "missing name", content: `{"dependencies":{}}`, wantErr: true},
		{name: "numeric name", content: `{"name":5}`, wantErr: true},
		{name: "blank name", content: `{"name":"  "}`, wantErr: true},
		{name: "truncated", content: `{"name":"a",`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.content))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalid))
				assert.Error(t, Validate([]byte(tt.content)))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, m.Name)
		})
	}
}

func TestHashIsContentSensitive(t *testing.T) {
	a := Hash([]byte(`{"name":"a","dependencies":{}}`))
	b := Hash([]byte(`{"name":"a","dependencies":{} }`))

	assert.Len(t, a, 64)
	assert.Equal(t, a, Hash([]byte(`{"name":"a","dependencies":{}}`)))
	assert.NotEqual(t, a, b)
}

func TestIsManifest(t *testing.T) {
	assert.True(t, IsManifest("/project", "/project/package.json"))
	assert.True(t, IsManifest("/project/", "/project/package.json"))
	assert.False(t, IsManifest("/project", "/project/node_modules/react/package.json"))
}

func TestAllDependencies(t *testing.T) {
	m, err := Parse([]byte(`{"name":"x","dependencies":{"react":"^18","axios":"1.6.0"},"devDependencies":{"vite":"^5","react":"^17"}}`))
	require.NoError(t, err)

	deps := m.AllDependencies()
	require.Len(t, deps, 3)
	assert.Equal(t, Dependency{Name: "axios", Range: "1.6.0"}, deps[0])
	assert.Equal(t, Dependency{Name: "react", Range: "^18"}, deps[1])
	assert.Equal(t, Dependency{Name: "vite", Range: "^5", Dev: true}, deps[2])
}
