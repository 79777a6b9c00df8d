package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input      string
		name       string
		tag        string
		official   bool
		qualified  string
		repository string
		fileName   string
	}{
		{"redis", "redis", "latest", true, "library/redis:latest", "library/redis", "redis.tar"},
		{"redis:7", "redis", "7", true, "library/redis:7", "library/redis", "redis_7.tar"},
		{"myorg/app:1.2", "myorg/app", "1.2", false, "myorg/app:1.2", "myorg/app", "myorg_app_1.2.tar"},
		{"myorg/app", "myorg/app", "latest", false, "myorg/app", "myorg/app", "myorg_app.tar"},
		{"library/nginx:alpine", "library/nginx", "alpine", false, "library/nginx:alpine", "library/nginx", "library_nginx_alpine.tar"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ref := Parse(tt.input)
			assert.Equal(t, tt.input, ref.Raw)
			assert.Equal(t, tt.name, ref.Name)
			assert.Equal(t, tt.tag, ref.Tag)
			assert.Equal(t, tt.official, ref.IsOfficial)
			assert.Equal(t, tt.qualified, ref.FullyQualifiedName)
			assert.Equal(t, tt.repository, ref.Repository)
			assert.Equal(t, tt.fileName, ref.FileName)
		})
	}
}

func TestParseIsIdempotent(t *testing.T) {
	for _, input := range []string{"redis", "redis:7", "myorg/app:1.2", "myorg/app", "library/redis", "ghcr.io/org/tool:v1"} {
		t.Run(input, func(t *testing.T) {
			first := Parse(input).FullyQualifiedName
			second := Parse(first).FullyQualifiedName
			require.Equal(t, first, second)
		})
	}
}

func TestOfficialNamesGainLibraryPrefix(t *testing.T) {
	ref := Parse("alpine:3.20")
	require.True(t, ref.IsOfficial)
	require.Equal(t, "library/alpine:3.20", ref.String())

	qualified := Parse("bitnami/redis:7")
	require.False(t, qualified.IsOfficial)
	require.Equal(t, "bitnami/redis:7", qualified.String())
}

func TestTaggedNamesAlwaysCarryATag(t *testing.T) {
	tests := []struct {
		input       string
		tagged      string
		shortTagged string
	}{
		{"redis", "library/redis:latest", "redis:latest"},
		{"redis:7", "library/redis:7", "redis:7"},
		{"myorg/app", "myorg/app:latest", "myorg/app:latest"},
		{"myorg/app:1.2", "myorg/app:1.2", "myorg/app:1.2"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ref := Parse(tt.input)
			assert.Equal(t, tt.tagged, ref.Tagged())
			assert.Equal(t, tt.shortTagged, ref.ShortTagged())
		})
	}
}

func TestParseAndValidate(t *testing.T) {
	tests := []struct {
		input   string
		wantErr error
	}{
		{"redis", nil},
		{"myorg/app:1.2", nil},
		{"ghcr.io/org/tool:v1", nil},
		{"", ErrNameRequired},
		{"   ", ErrNameRequired},
		{"UPPERCASE", ErrInvalidName},
		{"has spaces", ErrInvalidName},
		{"redis:bad tag", ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseAndValidate(tt.input)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
