//go:build !nogui

package main

import (
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/host/desktop"
	"github.com/deskhost/deskhost/internal/host/headless"
)

// newHost returns the fyne desktop host unless headless mode is requested.
func newHost(logger *zap.Logger, appName string, headlessMode bool) host.Host {
	if headlessMode {
		return headless.New(logger, headless.Options{AppName: appName, System: true})
	}
	return desktop.New(logger, appIDPrefix+"."+appName, appName)
}
