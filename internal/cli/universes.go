package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/raine/kanda-client/internal/kanda"
	"github.com/spf13/cobra"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func newUniversesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "universes",
		Aliases: []string{"universe"},
		Short:   "Browse and manage story universes",
	}
	cmd.AddCommand(
		newUniversesListCmd(e),
		newUniversesShowCmd(e),
		newUniversesCreateCmd(e),
		newUniversesDeleteCmd(e),
	)
	return cmd
}

func printUniverses(w io.Writer, universes []kanda.Universe) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPUBLIC\tPERIOD")
	for _, u := range universes {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", u.ID, u.Name, u.IsPublic, u.TimePeriod)
	}
	tw.Flush()
}

func newUniversesListCmd(e *env) *cobra.Command {
	var public, mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List universes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.app.Universes
			s.Fetch(cmd.Context())
			if err := s.Err(); err != nil {
				return fmt.Errorf("%s: %w", s.Error(), err)
			}
			universes := s.Universes()
			switch {
			case public:
				universes = s.PublicUniverses()
			case mine:
				universes = s.UserUniverses()
			}
			return e.emit(universes, func(w io.Writer) { printUniverses(w, universes) })
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "Only public universes")
	cmd.Flags().BoolVar(&mine, "private", false, "Only private universes")
	cmd.MarkFlagsMutuallyExclusive("public", "private")
	return withRoute(cmd, "/rooms")
}

func newUniversesShowCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a universe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := e.app.Universes.FetchOne(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.emit(u, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n\n%s\n", u.Name, u.ID, u.Description)
				if u.Context != "" {
					fmt.Fprintf(w, "\nContext:\n%s\n", u.Context)
				}
				if u.Rules != "" {
					fmt.Fprintf(w, "\nRules:\n%s\n", u.Rules)
				}
				fmt.Fprintf(w, "\nPeriod: %s  Location: %s  Technology: %s\n", u.TimePeriod, u.Location, u.TechnologyLevel)
				fmt.Fprintf(w, "Magic: %t  Supernatural: %t  Public: %t\n", u.MagicAllowed, u.SupernaturalElements, u.IsPublic)
			})
		},
	}
	return withRoute(cmd, "/rooms")
}

func newUniversesCreateCmd(e *env) *cobra.Command {
	var u kanda.Universe
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a universe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Struct(u); err != nil {
				return fmt.Errorf("invalid universe: %w", err)
			}
			created, err := e.app.Universes.Create(cmd.Context(), u)
			if err != nil {
				return err
			}
			return e.emit(created, func(w io.Writer) {
				fmt.Fprintf(w, "Created universe %s (%s)\n", created.Name, created.ID)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&u.Name, "name", "", "Name")
	f.StringVar(&u.Description, "description", "", "Short description")
	f.StringVar(&u.Context, "context", "", "World context given to the narrator")
	f.StringVar(&u.Rules, "rules", "", "World rules")
	f.StringVar(&u.TimePeriod, "period", "", "Time period")
	f.StringVar(&u.Location, "location", "", "Location")
	f.StringVar(&u.TechnologyLevel, "technology", "", "Technology level")
	f.BoolVar(&u.MagicAllowed, "magic", false, "Magic exists in this world")
	f.BoolVar(&u.SupernaturalElements, "supernatural", false, "Supernatural elements exist in this world")
	f.BoolVar(&u.IsPublic, "public", false, "Visible to other users")
	return withRoute(cmd, "/rooms")
}

func newUniversesDeleteCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a universe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Universes.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return e.emit(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
	return withRoute(cmd, "/rooms")
}
