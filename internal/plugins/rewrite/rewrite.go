// Package rewrite is the built-in plugin turning configured regex rules
// into injectors.
package rewrite

import (
	"fmt"
	"log/slog"
	"regexp"

	"git.home.luguber.info/inful/hotpatch/internal/config"
	"git.home.luguber.info/inful/hotpatch/internal/plugin"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
)

// Name is the plugin name.
const Name = "rewrite"

// EnabledSetting gates the whole plugin.
const EnabledSetting = config.RewriteEnabledSetting

// New returns the rewrite plugin for rules. Each rule becomes one injector
// in configuration order; a rule whose enabled_by setting is off is skipped.
func New(rules []config.RewriteRule) plugin.Definition {
	return plugin.Definition{
		Meta: plugin.Metadata{
			Name:        Name,
			Description: "Declarative regex rewrite rules",
			EnabledBy:   EnabledSetting,
		},
		OnInit: func(ctx *plugin.Context) error {
			for _, rule := range rules {
				if !ctx.Enabled(rule.EnabledBy) {
					ctx.Logger.Info("Rewrite rule disabled via settings",
						slog.String("rule", rule.Name),
						slog.String("setting", rule.EnabledBy))
					continue
				}
				re, err := regexp.Compile(rule.Pattern)
				if err != nil {
					return fmt.Errorf("rule %s: %w", rule.Name, err)
				}
				ctx.OnInject(rule.Name, transforms.Rewrite(rule.Name, re, rule.Replace, rule.All, ctx.Logger))
			}
			return nil
		},
	}
}
