package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	appconfig "github.com/compozy/storage/pkg/config"
)

const (
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTable = "table"
)

// ConfigCmd returns the config command
func ConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(
		configShowCmd(opts),
		configValidateCmd(opts),
	)
	return cmd
}

func configShowCmd(opts *rootOptions) *cobra.Command {
	var (
		format      string
		showSources bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration after defaults, the config file and the
environment are merged. Secrets are always redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, service, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), cfg, service, format, showSources)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format (json, yaml, table)")
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Show which source supplied each value")
	return cmd
}

func configValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			enabled := enabledBackends(cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration is valid (backends: %s)\n", strings.Join(enabled, ", "))
			return nil
		},
	}
}

func enabledBackends(cfg *appconfig.Config) []string {
	var out []string
	if cfg.SQLite.Enabled {
		out = append(out, "sqlite")
	}
	if cfg.Redis.Enabled {
		out = append(out, "redis")
	}
	if cfg.InfluxDB.Enabled {
		out = append(out, "influxdb")
	}
	if len(out) == 0 {
		out = append(out, "none")
	}
	return out
}

func writeConfig(w io.Writer, cfg *appconfig.Config, service appconfig.Service, format string, showSources bool) error {
	var entries []configEntry
	collectEntries("", reflect.ValueOf(cfg).Elem(), &entries)
	sources := make(map[string]appconfig.SourceType, len(entries))
	for _, e := range entries {
		sources[e.key] = service.GetSource(e.key)
	}
	switch format {
	case formatJSON:
		out := map[string]any{"config": nestEntries(entries)}
		if showSources {
			out["sources"] = sources
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case formatYAML:
		out := map[string]any{"config": nestEntries(entries)}
		if showSources {
			out["sources"] = sources
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if showSources {
			fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
		} else {
			fmt.Fprintln(tw, "KEY\tVALUE")
		}
		for _, e := range entries {
			if showSources {
				fmt.Fprintf(tw, "%s\t%v\t%s\n", e.key, e.value, sources[e.key])
			} else {
				fmt.Fprintf(tw, "%s\t%v\n", e.key, e.value)
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

type configEntry struct {
	key   string
	value any
}

// collectEntries walks the koanf-tagged fields of v in declaration order.
func collectEntries(prefix string, v reflect.Value, out *[]configEntry) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			collectEntries(key, fv, out)
			continue
		}
		*out = append(*out, configEntry{key: key, value: displayValue(fv.Interface())})
	}
}

func displayValue(v any) any {
	switch x := v.(type) {
	case time.Duration:
		return x.String()
	case appconfig.SensitiveString:
		return x.String()
	default:
		return v
	}
}

func nestEntries(entries []configEntry) map[string]any {
	root := make(map[string]any)
	for _, e := range entries {
		parts := strings.Split(e.key, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = e.value
	}
	return root
}
