package config

import (
	"git.home.luguber.info/inful/hotpatch/internal/settings"
)

// RewriteEnabledSetting gates the rules of the rewrites section.
const RewriteEnabledSetting = "rewrite.enabled"

// BuiltinSettings are declared in every schema.
func BuiltinSettings() []settings.Field {
	return []settings.Field{{
		Key:         RewriteEnabledSetting,
		Type:        settings.TypeBool,
		Default:     "true",
		Description: "Apply the rewrite rules from the configuration file",
	}}
}

// SettingsSchema builds the central schema from BuiltinSettings, any extra
// fields, and those declared in the configuration file.
func (c *Config) SettingsSchema(builtin ...settings.Field) (*settings.Schema, error) {
	schema, err := settings.NewSchema(append(BuiltinSettings(), builtin...)...)
	if err != nil {
		return nil, err
	}
	for _, sf := range c.Settings.Schema {
		if err := schema.Declare(settings.Field{
			Key:         sf.Key,
			Type:        settings.Type(sf.Type),
			Default:     sf.Default,
			Description: sf.Description,
		}); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

// SettingsValues resolves the configured values against the schema.
func (c *Config) SettingsValues(builtin ...settings.Field) (*settings.Values, error) {
	schema, err := c.SettingsSchema(builtin...)
	if err != nil {
		return nil, err
	}
	return settings.NewValues(schema, c.Settings.Values)
}
