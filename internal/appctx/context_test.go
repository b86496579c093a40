package appctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/host/headless"
)

func TestContextMainWindow(t *testing.T) {
	h := headless.New(zaptest.NewLogger(t), headless.Options{})
	c := New(config.DefaultSettings())

	assert.Nil(t, c.MainWindow())
	assert.Equal(t, config.DefaultAppName, c.Settings().App.Name)

	first, _ := h.CreateWindow(host.WindowOptions{})
	second, _ := h.CreateWindow(host.WindowOptions{})

	c.SetMainWindow(first)
	assert.Same(t, first, c.MainWindow())

	assert.False(t, c.ClearMainWindow(second), "a different window must not clear the reference")
	assert.Same(t, first, c.MainWindow())

	assert.True(t, c.ClearMainWindow(first))
	assert.Nil(t, c.MainWindow())
	assert.False(t, c.ClearMainWindow(first))
}

func TestContextHidesDestroyedWindow(t *testing.T) {
	h := headless.New(zaptest.NewLogger(t), headless.Options{})
	c := New(config.DefaultSettings())

	w, _ := h.CreateWindow(host.WindowOptions{})
	c.SetMainWindow(w)
	w.Close()

	assert.Nil(t, c.MainWindow())
}
