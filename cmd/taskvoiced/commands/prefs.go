package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskvoice/internal/kv"
)

func newPrefsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read or change persisted preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "lockout [on|off]",
		Short: "Show or toggle the passphrase gate (applies on next start)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, _, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			if len(args) == 1 {
				enabled, err := parseToggle(args[0])
				if err != nil {
					return err
				}
				if err := kv.SetLockoutEnabled(cmd.Context(), services.KV, enabled); err != nil {
					return err
				}
			}

			enabled, err := kv.LockoutEnabled(cmd.Context(), services.KV, services.Config.Lockout.Enabled)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), map[string]bool{"enabled": enabled})
			}
			state := "off"
			if enabled {
				state = "on"
			}
			printf(cmd.OutOrStdout(), "lockout %s\n", state)
			return nil
		},
	})

	return cmd
}

func parseToggle(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", value)
	}
}
