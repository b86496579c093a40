//go:build !nogui

package desktop

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// variantTheme pins the default theme to one variant regardless of the OS preference.
type variantTheme struct {
	variant fyne.ThemeVariant
}

var _ fyne.Theme = (*variantTheme)(nil)

func newVariantTheme(name string) fyne.Theme {
	if name == "light" {
		return &variantTheme{variant: theme.VariantLight}
	}
	return &variantTheme{variant: theme.VariantDark}
}

func (t *variantTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	return theme.DefaultTheme().Color(name, t.variant)
}

func (t *variantTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *variantTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *variantTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
