package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/spf13/cobra"
)

func newStoryCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "story",
		Short: "Read the story played in a room",
	}
	cmd.AddCommand(newStoryShowCmd(e))
	return cmd
}

func newStoryShowCmd(e *env) *cobra.Command {
	var byID bool
	cmd := &cobra.Command{
		Use:   "show <room-id>",
		Short: "Show the story of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				story *kanda.Story
				err   error
			)
			if byID {
				story, err = e.app.Client.Stories.Get(ctx, args[0])
			} else {
				story, err = e.app.Client.Stories.ByRoom(ctx, args[0])
			}
			if err != nil {
				return err
			}
			if story == nil {
				return e.emit(nil, func(w io.Writer) { fmt.Fprintln(w, "No story has started in this room yet") })
			}

			chapters, err := e.app.Client.Chapters.ByStory(ctx, story.ID)
			if err != nil {
				return err
			}
			report := struct {
				*kanda.Story
				Chapters []kanda.Chapter `json:"chapters"`
			}{story, chapters}
			return e.emit(report, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", orText(story.Title, "Untitled"), story.ID)
				fmt.Fprintf(w, "Status: %s  Chapter %d of %d  (%.0f%%)\n",
					story.Status, story.CurrentChapter, story.TotalChapters, story.ProgressPercentage)
				for _, ch := range chapters {
					fmt.Fprintf(w, "\n--- Chapter %d ---\n%s\n", ch.ChapterNumber, ch.Content)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&byID, "id", false, "Treat the argument as a story id")
	return withRoute(cmd, "/rooms")
}

func newChaptersCmd(e *env) *cobra.Command {
	var chapterID string
	cmd := &cobra.Command{
		Use:   "chapters [story-id]",
		Short: "List a story's chapters, or show one with --chapter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if chapterID != "" {
				ch, err := e.app.Client.Chapters.Get(ctx, chapterID)
				if err != nil {
					return err
				}
				return e.emit(ch, func(w io.Writer) {
					fmt.Fprintf(w, "Chapter %d (%s, %d words)\n\n%s\n", ch.ChapterNumber, ch.Status, ch.WordCount, ch.Content)
				})
			}
			if len(args) == 0 {
				return errors.New("a story id or --chapter is required")
			}

			chapters, err := e.app.Client.Chapters.ByStory(ctx, args[0])
			if err != nil {
				return err
			}
			return e.emit(chapters, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNUMBER\tSTATUS\tWORDS")
				for _, ch := range chapters {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", ch.ID, ch.ChapterNumber, ch.Status, ch.WordCount)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&chapterID, "chapter", "", "Show this chapter")
	return withRoute(cmd, "/rooms")
}

func newActionsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Read and submit player actions",
	}
	cmd.AddCommand(newActionsListCmd(e), newActionsSubmitCmd(e))
	return cmd
}

func newActionsListCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <chapter-id>",
		Short: "List the actions submitted in a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := e.app.Client.Actions.ByChapter(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.emit(actions, func(w io.Writer) {
				for _, a := range actions {
					who := orText(a.CharacterName, a.Character)
					if a.UserUsername != "" {
						who += " (" + a.UserUsername + ")"
					}
					fmt.Fprintf(w, "%s: %s\n", who, a.ActionText)
				}
			})
		},
	}
	return withRoute(cmd, "/rooms")
}

func newActionsSubmitCmd(e *env) *cobra.Command {
	var roomID, chapterID, characterID string
	cmd := &cobra.Command{
		Use:   "submit <text>",
		Short: "Submit what your character does in the current chapter",
		Long: formatText(`
			Submit an action for a chapter. With --room the action goes through
			the room, which picks your character; otherwise --character is
			required.
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				action *kanda.PlayerAction
				err    error
			)
			switch {
			case roomID != "":
				action, err = e.app.Client.Rooms.SubmitAction(cmd.Context(), roomID, chapterID, args[0])
			case characterID != "":
				action, err = e.app.Client.Actions.Submit(cmd.Context(), chapterID, characterID, args[0])
			default:
				return errors.New("--room or --character is required")
			}
			if err != nil {
				return err
			}
			return e.emit(action, func(w io.Writer) { fmt.Fprintf(w, "Action submitted (%s)\n", action.ID) })
		},
	}
	f := cmd.Flags()
	f.StringVar(&chapterID, "chapter", "", "Chapter id")
	f.StringVar(&roomID, "room", "", "Submit through this room")
	f.StringVar(&characterID, "character", "", "Character taking the action")
	cmd.MarkFlagRequired("chapter")
	return withRoute(cmd, "/rooms")
}
