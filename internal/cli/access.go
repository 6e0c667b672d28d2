package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/suma-triage/internal/app/access"
	"github.com/PabloGalante/suma-triage/internal/domain"
)

func newActivateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate CODE",
		Short: "Activate this device with a 6-digit code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.controller.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Activated. %d days of access remaining.\n", snap.Access.DaysRemaining)
			if !snap.Access.HasRole() {
				fmt.Fprintf(out, "Next: select your role with `suma role <%s>`.\n", roleChoices())
			}
			return nil
		},
	}
}

func newRoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "role ROLE",
		Short: "Select your professional role",
		Long:  "Select your professional role: " + roleChoices() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := domain.ParseUserRole(args[0])
			if err != nil {
				return err
			}

			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.controller.SelectRole(cmd.Context(), role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Role set to %s.\n", role.Label())
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show activation status and selected role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.controller.CheckAccess(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(w io.Writer, st access.Status) {
	switch st.Result {
	case access.NotActivated:
		fmt.Fprintln(w, "Not activated. Run `suma activate CODE`.")
		return
	case access.Denied:
		fmt.Fprintln(w, access.RenewalMessage)
		return
	}

	fmt.Fprintf(w, "Access: %d days remaining\n", st.DaysRemaining)
	if st.HasRole() {
		fmt.Fprintf(w, "Role:   %s\n", st.Role.Label())
	} else {
		fmt.Fprintln(w, "Role:   not selected")
	}
	printBanner(w, st)
}

func printBanner(w io.Writer, st access.Status) {
	switch st.Banner {
	case access.BannerCritical:
		fmt.Fprintf(w, "!! Your access expires in %d day(s). Renew it now.\n", st.DaysRemaining)
	case access.BannerWarning:
		fmt.Fprintf(w, "! Your access expires in %d days.\n", st.DaysRemaining)
	}
}

func roleChoices() string {
	names := make([]string, 0, len(domain.Roles()))
	for _, r := range domain.Roles() {
		names = append(names, r.String())
	}
	return strings.Join(names, "|")
}
