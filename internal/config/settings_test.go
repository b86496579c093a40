package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSettings(t *testing.T) {
	t.Setenv(EnvironmentVar, "")

	s := DefaultSettings()
	assert.Equal(t, WindowSettings{Width: 1200, Height: 800, MinWidth: 800, MinHeight: 600}, s.Window)
	assert.Equal(t, DefaultAppName, s.App.Name)
	assert.Equal(t, "1.0.0", s.App.Version)
	assert.Equal(t, DefaultAppProtocol, s.App.Protocol)
	assert.False(t, s.IsDev)
	assert.False(t, s.ShowBootstrapTime)
}

func TestDefaultSettingsDevelopmentEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVar, "Development")

	s := DefaultSettings()
	assert.True(t, s.IsDev)
	assert.True(t, s.ShowBootstrapTime)
}

func TestMergeSettings(t *testing.T) {
	t.Setenv(EnvironmentVar, "")
	base := DefaultSettings()

	tests := []struct {
		name     string
		override SettingsOverride
		check    func(t *testing.T, s Settings)
	}{
		{
			name:     "empty override keeps defaults",
			override: SettingsOverride{},
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, base, s)
			},
		},
		{
			name:     "partial window override keeps other window fields",
			override: SettingsOverride{Window: WindowSettings{Width: 1600}},
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 1600, s.Window.Width)
				assert.Equal(t, 800, s.Window.Height)
				assert.Equal(t, 800, s.Window.MinWidth)
				assert.Equal(t, 600, s.Window.MinHeight)
			},
		},
		{
			name:     "app fields override independently",
			override: SettingsOverride{App: AppSettings{Version: "2.3.4"}},
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultAppName, s.App.Name)
				assert.Equal(t, "2.3.4", s.App.Version)
				assert.Equal(t, DefaultAppProtocol, s.App.Protocol)
			},
		},
		{
			name:     "explicit false dev flag wins",
			override: SettingsOverride{IsDev: BoolPtr(false), ShowBootstrapTime: BoolPtr(true)},
			check: func(t *testing.T, s Settings) {
				assert.False(t, s.IsDev)
				assert.True(t, s.ShowBootstrapTime)
			},
		},
		{
			name:     "negative sizes are treated as unset",
			override: SettingsOverride{Window: WindowSettings{Height: -1}},
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 800, s.Window.Height)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, MergeSettings(base, tt.override))
		})
	}
}

func TestMergeSettingsDoesNotMutateBase(t *testing.T) {
	base := DefaultSettings()
	before := base

	_ = MergeSettings(base, SettingsOverride{App: AppSettings{Name: "other"}, IsDev: BoolPtr(true)})

	assert.Equal(t, before, base)
}
