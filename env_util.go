package kubus

import "os"

// Environment variables read by OptionsFromEnv.
const (
	EnvURL         = "KUBUS_URL"
	EnvName        = "KUBUS_NAME"
	EnvViewsFolder = "KUBUS_VIEWS_FOLDER"
	EnvViewsSuffix = "KUBUS_VIEWS_SUFFIX"
)

func GetEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

// OptionsFromEnv fills the connection and view options from KUBUS_*
// variables.
func OptionsFromEnv() Options {
	return Options{
		URL:         GetEnvOrDefault(EnvURL, ""),
		Name:        GetEnvOrDefault(EnvName, ""),
		ViewsFolder: GetEnvOrDefault(EnvViewsFolder, ""),
		ViewsSuffix: GetEnvOrDefault(EnvViewsSuffix, ""),
	}
}
