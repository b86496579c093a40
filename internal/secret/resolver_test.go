package secret

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap/zaptest"
)

func clearTokenEnv(t *testing.T) {
	for _, name := range tokenEnvVars {
		t.Setenv(name, "")
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		input   string
		want    Ref
		wantErr bool
	}{
		{input: "${env:GITHUB_TOKEN}", want: Ref{Type: "env", Name: "GITHUB_TOKEN", Original: "${env:GITHUB_TOKEN}"}},
		{input: "${keyring: github-token }", want: Ref{Type: "keyring", Name: "github-token", Original: "${keyring: github-token }"}},
		{input: "plain-value", wantErr: true},
		{input: "${env}", wantErr: true},
		{input: "prefix ${env:X}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRef(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, IsRef(tt.input))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsRef(tt.input))
		})
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "*****6789", Mask("123456789"))
}

func TestExpand(t *testing.T) {
	keyring.MockInit()
	t.Setenv("DESKHOST_TEST_SECRET", "from-env")
	r := NewResolver(zaptest.NewLogger(t))
	ctx := context.Background()

	got, err := r.Expand(ctx, "literal")
	require.NoError(t, err)
	assert.Equal(t, "literal", got)

	got, err = r.Expand(ctx, "${env:DESKHOST_TEST_SECRET}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	_, err = r.Expand(ctx, "${env:DESKHOST_TEST_MISSING}")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Expand(ctx, "${vault:x}")
	assert.ErrorContains(t, err, "no provider")
}

func TestTokenPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("configured reference wins", func(t *testing.T) {
		keyring.MockInit()
		clearTokenEnv(t)
		t.Setenv("GITHUB_TOKEN", "env-token")
		t.Setenv("CUSTOM_TOKEN", "custom")
		r := NewResolver(zaptest.NewLogger(t))

		value, source, err := r.Token(ctx, "${env:CUSTOM_TOKEN}")
		require.NoError(t, err)
		assert.Equal(t, "custom", value)
		assert.Equal(t, "config", source)
	})

	t.Run("broken configured reference fails", func(t *testing.T) {
		keyring.MockInit()
		r := NewResolver(zaptest.NewLogger(t))
		_, _, err := r.Token(ctx, "${keyring:absent}")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("environment before keyring", func(t *testing.T) {
		keyring.MockInit()
		clearTokenEnv(t)
		t.Setenv("GH_TOKEN", "gh")
		r := NewResolver(zaptest.NewLogger(t))
		require.NoError(t, r.StoreToken(ctx, "stored"))

		value, source, err := r.Token(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "gh", value)
		assert.Equal(t, "env:GH_TOKEN", source)
	})

	t.Run("keyring fallback", func(t *testing.T) {
		keyring.MockInit()
		clearTokenEnv(t)
		r := NewResolver(zaptest.NewLogger(t))
		require.NoError(t, r.StoreToken(ctx, "stored"))

		value, source, err := r.Token(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "stored", value)
		assert.Equal(t, "keyring:github-token", source)
	})

	t.Run("no token is anonymous", func(t *testing.T) {
		keyring.MockInit()
		clearTokenEnv(t)
		r := NewResolver(zaptest.NewLogger(t))

		value, source, err := r.Token(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, value)
		assert.Empty(t, source)
	})
}

func TestStoreAndDeleteToken(t *testing.T) {
	keyring.MockInit()
	clearTokenEnv(t)
	ctx := context.Background()
	r := NewResolver(zaptest.NewLogger(t))

	assert.Error(t, r.StoreToken(ctx, ""))
	require.NoError(t, r.StoreToken(ctx, "abc"))
	require.NoError(t, r.DeleteToken(ctx))
	assert.ErrorIs(t, r.DeleteToken(ctx), ErrNotFound)

	value, _, err := r.Token(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestEnvProviderIsReadOnly(t *testing.T) {
	r := NewResolver(zaptest.NewLogger(t))
	ctx := context.Background()
	assert.Error(t, r.Store(ctx, Ref{Type: TypeEnv, Name: "X"}, "v"))
	assert.Error(t, r.Delete(ctx, Ref{Type: TypeEnv, Name: "X"}))
}
