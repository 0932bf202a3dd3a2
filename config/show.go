package config

import (
	"encoding/json"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teranos/civicload/errors"
)

// redactedKeys are masked when the effective configuration is printed
var redactedKeys = map[string][]string{
	"stage":     {"secret_access_key", "access_key_id"},
	"warehouse": {"dsn"},
}

// Render serializes the effective settings held by v in the given format
// (toml, yaml or json), masking credentials.
func Render(v *viper.Viper, format string) ([]byte, error) {
	settings := v.AllSettings()
	for section, keys := range redactedKeys {
		sub, ok := settings[section].(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range keys {
			if s, ok := sub[key].(string); ok && s != "" && !(section == "warehouse" && isLocalPath(s)) {
				sub[key] = "********"
			}
		}
	}

	switch format {
	case "toml":
		data, err := toml.Marshal(settings)
		return data, errors.Wrap(err, "marshal toml")
	case "yaml":
		data, err := yaml.Marshal(settings)
		return data, errors.Wrap(err, "marshal yaml")
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		return data, errors.Wrap(err, "marshal json")
	default:
		return nil, errors.NewInvalidRequestError("unsupported format: %s (supported: toml, yaml, json)", format)
	}
}

// isLocalPath reports whether a DSN is a plain file path with no credentials in it
func isLocalPath(dsn string) bool {
	for _, c := range dsn {
		if c == '@' || c == '=' || c == ':' {
			return false
		}
	}
	return true
}
