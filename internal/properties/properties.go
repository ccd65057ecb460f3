package properties

import (
	"os"
	"path/filepath"
)

// RootPath is the directory every relative data path is resolved against.
func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

// CopernicusClientIDs and CopernicusClientSecrets hold comma-separated credential lists; the
// n-th id goes with the n-th secret.
func CopernicusClientIDs() string {
	return os.Getenv("COPERNICUS_CLIENT_ID")
}

func CopernicusClientSecrets() string {
	return os.Getenv("COPERNICUS_CLIENT_SECRET")
}

func CopernicusTokenURL() string {
	return os.Getenv("COPERNICUS_TOKEN_URL")
}

// Resolve joins a relative path with RootPath. Absolute paths and an unset root leave path
// unchanged.
func Resolve(path string) string {
	root := RootPath()
	if path == "" || root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

type Color struct {
	R, G, B uint8
}

// ColorMap holds the quicklook colours of each sensor.
var ColorMap = map[string]Color{
	"Sentinel2": {46, 139, 87},
	"Landsat8":  {218, 165, 32},
	"MODIS":     {178, 34, 34},
	"unknown":   {255, 0, 0},
}
