package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
)

// SettingsCmd implements the 'settings' command.
type SettingsCmd struct {
	Defaults bool `help:"Show the values every setting resets to"`
	JSON     bool `name:"json" help:"Print as JSON"`
}

type settingRow struct {
	Key         string `json:"key"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	Default     bool   `json:"default"`
	Description string `json:"description,omitempty"`
}

func (s *SettingsCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	values, err := cfg.SettingsValues()
	if err != nil {
		return derrors.ValidationFailed("settings", err.Error())
	}
	if s.Defaults {
		values = values.Defaults()
	}

	effective := values.Effective()
	rows := make([]settingRow, len(effective))
	for i, e := range effective {
		rows[i] = settingRow{
			Key:         e.Key,
			Type:        string(e.Type),
			Value:       e.Value,
			Default:     e.IsDefault,
			Description: e.Description,
		}
	}
	if s.JSON {
		return printValue(g, rows, true)
	}

	t := newTable(g)
	t.AppendHeader(table.Row{"KEY", "TYPE", "VALUE", "SOURCE", "DESCRIPTION"})
	for _, r := range rows {
		source := "config"
		if r.Default {
			source = "default"
		}
		t.AppendRow(table.Row{r.Key, r.Type, r.Value, source, r.Description})
	}
	t.Render()
	return nil
}
