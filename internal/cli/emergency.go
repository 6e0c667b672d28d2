package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/suma-triage/internal/app/emergency"
	"github.com/PabloGalante/suma-triage/internal/config"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

// newEmergencyCmd needs neither activation nor storage: the call must always go out.
func newEmergencyCmd(opts *rootOptions) *cobra.Command {
	var locale string

	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Call the local emergency number and share the device location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				observability.Logger().Warn("config unavailable, using defaults", "error", err)
				cfg = &config.Config{}
			}
			if locale != "" {
				cfg.Locale = locale
			}

			dev := emergency.NewWriterDevice(cmd.OutOrStdout())
			a := &app{cfg: cfg}
			d, err := a.emergencyService(dev, dev, dev).Trigger(cmd.Context())
			if err != nil {
				return fmt.Errorf("emergency call: %w", err)
			}
			<-d.Done
			return nil
		},
	}

	cmd.Flags().StringVar(&locale, "locale", "", "override the device locale, e.g. es-PE")
	return cmd
}
