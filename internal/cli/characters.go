package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/raine/kanda-client/internal/character"
	"github.com/raine/kanda-client/internal/kanda"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newCharactersCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "characters",
		Aliases: []string{"character", "chars"},
		Short:   "Manage your characters",
	}
	cmd.AddCommand(
		newCharactersListCmd(e),
		newCharactersSaveCmd(e, false),
		newCharactersSaveCmd(e, true),
		newCharactersDeleteCmd(e),
		newCharactersEvaluateCmd(e),
		newCharactersBackgroundCmd(e),
	)
	return cmd
}

func printCharacters(w io.Writer, chars []kanda.Character) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tARCHETYPE\tPOWER")
	for _, c := range chars {
		power := "-"
		if c.AIFilter != nil {
			power = strconv.FormatFloat(c.AIFilter.PowerLevel, 'f', -1, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Archetype, power)
	}
	tw.Flush()
}

func bindFormFlags(f *pflag.FlagSet, form *character.Form) {
	f.StringVar(&form.Name, "name", "", "Character name")
	f.StringVar(&form.Age, "age", "", "Age")
	f.StringVar(&form.Gender, "gender", "", "Gender")
	f.StringVar(&form.Archetype, "archetype", character.DefaultArchetype, "Archetype")
	f.StringVar(&form.PhysicalDescription, "physical", "", "Physical description")
	f.StringVar(&form.Personality, "personality", "", "Personality")
	f.StringVar(&form.History, "history", "", "Background story")
	f.StringVar(&form.Strengths, "strengths", "", "Comma-separated strengths")
	f.StringVar(&form.Weaknesses, "weaknesses", "", "Comma-separated weaknesses")
	f.StringVar(&form.SpecialAbilities, "abilities", "", "Special abilities")
	f.StringVar(&form.Goals, "goals", "", "Goals")
}

func newCharactersListCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chars, err := e.app.Client.Characters.List(cmd.Context())
			if err != nil {
				return err
			}
			return e.emit(chars, func(w io.Writer) { printCharacters(w, chars) })
		},
	}
	return withRoute(cmd, "/characters")
}

// newCharactersSaveCmd builds "create", or "update <id>" when update is set.
func newCharactersSaveCmd(e *env, update bool) *cobra.Command {
	form := character.NewForm()
	var (
		evaluate   bool
		accept     bool
		genHistory bool
		useDefault bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a character",
		Long: formatText(`
			Create a character from flags. With --evaluate the sheet is
			reviewed by the server first and the review is stored with the
			character; --accept-suggestions also applies the suggested
			changes. --generate-history writes a background when none is given.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api := e.app.Client.Characters
			if useDefault {
				c, err := api.CreateDefault(ctx)
				if err != nil {
					return err
				}
				return e.emit(c, func(w io.Writer) { fmt.Fprintf(w, "Created %s (%s)\n", c.Name, c.ID) })
			}

			var id string
			if update {
				id = args[0]
			}
			if err := form.Validate(); err != nil {
				return fmt.Errorf("invalid character: %w", err)
			}

			ev := character.NewEvaluator(api)
			if genHistory && form.History == "" {
				bg, err := ev.GenerateBackground(ctx, form)
				if err != nil {
					return err
				}
				form.History = bg
			}

			var eval *kanda.Evaluation
			if evaluate {
				var err error
				if eval, err = ev.Evaluate(ctx, form); err != nil {
					return err
				}
				if accept {
					ev.Accept(&form)
				}
			}

			saved, err := character.Save(ctx, api, character.BuildPayload(form, eval), id)
			if err != nil {
				return err
			}
			return e.emit(saved, func(w io.Writer) {
				verb := "Created"
				if update {
					verb = "Updated"
				}
				fmt.Fprintf(w, "%s %s (%s)\n", verb, saved.Name, saved.ID)
			})
		},
	}
	if update {
		cmd.Use = "update <id>"
		cmd.Short = "Replace a character's sheet"
		cmd.Long = ""
		cmd.Args = cobra.ExactArgs(1)
	}
	f := cmd.Flags()
	bindFormFlags(f, &form)
	f.BoolVar(&evaluate, "evaluate", false, "Have the server review the sheet before saving")
	f.BoolVar(&accept, "accept-suggestions", false, "Apply the review's suggestions before saving")
	f.BoolVar(&genHistory, "generate-history", false, "Generate a background when --history is empty")
	if !update {
		f.BoolVar(&useDefault, "default", false, "Create the server's default character instead")
	}
	return withRoute(cmd, "/characters")
}

func newCharactersDeleteCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Client.Characters.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return e.emit(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
	return withRoute(cmd, "/characters")
}

func newCharactersEvaluateCmd(e *env) *cobra.Command {
	form := character.NewForm()
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Have the server review a character sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := form.Validate(); err != nil {
				return fmt.Errorf("invalid character: %w", err)
			}
			ev := character.NewEvaluator(e.app.Client.Characters)
			eval, err := ev.Evaluate(cmd.Context(), form)
			if err != nil {
				return err
			}
			ev.Accept(&form)
			return e.emit(eval, func(w io.Writer) {
				fmt.Fprintf(w, "Score:     %s\n", strconv.FormatFloat(eval.OverallScore, 'f', -1, 64))
				if eval.Comments != "" {
					fmt.Fprintf(w, "Comments:  %s\n", eval.Comments)
				}
				fmt.Fprintln(w, "\nWith suggestions applied:")
				fmt.Fprintf(w, "  Personality: %s\n", form.Personality)
				fmt.Fprintf(w, "  Strengths:   %s\n", form.Strengths)
				fmt.Fprintf(w, "  Weaknesses:  %s\n", form.Weaknesses)
				fmt.Fprintf(w, "  History:     %s\n", form.History)
			})
		},
	}
	bindFormFlags(cmd.Flags(), &form)
	return withRoute(cmd, "/characters")
}

func newCharactersBackgroundCmd(e *env) *cobra.Command {
	form := character.NewForm()
	cmd := &cobra.Command{
		Use:   "background",
		Short: "Generate a background story",
		Long: formatText(`
			Ask the server to write a background from the character's name,
			personality, strengths and weaknesses. If the server cannot, a
			background is written locally instead.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bg, err := character.NewEvaluator(e.app.Client.Characters).GenerateBackground(cmd.Context(), form)
			if err != nil {
				return err
			}
			return e.emit(kanda.BackgroundResponse{Background: bg}, func(w io.Writer) {
				fmt.Fprintln(w, bg)
			})
		},
	}
	bindFormFlags(cmd.Flags(), &form)
	return withRoute(cmd, "/characters")
}
