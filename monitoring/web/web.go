// Package web includes the static web pages for the monitoring tool.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"runtime"
	"strings"
)

//go:embed dist/*
var staticAssets embed.FS

// GetAssets returns the static assets
func GetAssets() http.FileSystem {
	if isDevelopmentMode() {
		_, assetPath, _, ok := runtime.Caller(0)
		if !ok {
			panic("error getting path")
		}

		assetPath = path.Join(path.Dir(assetPath), "/dist")

		slog.Info("monitor development mode", "assets", assetPath)

		return http.Dir(assetPath)
	}

	subFS, err := fs.Sub(staticAssets, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(subFS)
}

// DevModeEnv is the environment variable that makes the monitor serve the
// assets from the source tree.
const DevModeEnv = "VMSIM_MONITOR_DEV"

// isDevelopmentMode returns true if environment variable VMSIM_MONITOR_DEV is
// set.
func isDevelopmentMode() bool {
	evName := DevModeEnv
	evValue, exist := os.LookupEnv(evName)

	if !exist {
		return false
	}

	if strings.ToLower(evValue) == "true" || evValue == "1" {
		return true
	}

	return false
}
