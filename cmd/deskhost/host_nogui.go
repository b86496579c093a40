//go:build nogui

package main

import (
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/host/headless"
)

// newHost always returns the terminal host in builds without a GUI toolkit.
func newHost(logger *zap.Logger, appName string, headlessMode bool) host.Host {
	if !headlessMode {
		logger.Info("Built without GUI support, running headless")
	}
	return headless.New(logger, headless.Options{AppName: appName, System: true})
}
