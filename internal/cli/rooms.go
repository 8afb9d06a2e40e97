package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/raine/kanda-client/internal/stores"
	"github.com/raine/kanda-client/internal/watcher"
	"github.com/spf13/cobra"
)

func newRoomsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rooms",
		Aliases: []string{"room"},
		Short:   "Find, join and run story rooms",
	}
	cmd.AddCommand(
		newRoomsListCmd(e, "list", "List public rooms waiting for players", (*stores.RoomStore).FetchPublic, (*stores.RoomStore).AvailableRooms),
		newRoomsListCmd(e, "mine", "List rooms you administer", (*stores.RoomStore).FetchMine, (*stores.RoomStore).MyRooms),
		newRoomsListCmd(e, "joined", "List rooms you have joined", (*stores.RoomStore).FetchJoined, (*stores.RoomStore).JoinedRooms),
		newRoomsShowCmd(e),
		newRoomsCreateCmd(e),
		newRoomsJoinCmd(e),
		newRoomsLeaveCmd(e),
		newRoomsStartCmd(e),
		newRoomsParticipantsCmd(e),
		newRoomsReadyCmd(e),
		newRoomsAddCharactersCmd(e),
		newRoomsNarrateCmd(e),
		newRoomsWatchCmd(e),
	)
	return cmd
}

func printRooms(w io.Writer, rooms []kanda.Room) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPLAYERS\tUNIVERSE")
	for _, r := range rooms {
		players := fmt.Sprint(r.PlayerCount)
		if r.MaxPlayers > 0 {
			players = fmt.Sprintf("%d/%d", r.PlayerCount, r.MaxPlayers)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Status, players, orText(r.UniverseName, r.Universe))
	}
	tw.Flush()
}

func printParticipants(w io.Writer, participants []kanda.RoomParticipant) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLAYER\tREADY\tCHARACTERS")
	for _, p := range participants {
		chars := p.CharacterNames
		if len(chars) == 0 {
			chars = p.Characters
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", p.ID, orText(p.UserUsername, p.User), p.IsReady, strings.Join(chars, ", "))
	}
	tw.Flush()
}

// storeErr turns the store's recorded failure into a command error.
func storeErr(s *stores.RoomStore) error {
	if err := s.Err(); err != nil {
		return fmt.Errorf("%s: %w", s.Error(), err)
	}
	return nil
}

func newRoomsListCmd(e *env, use, short string, fetch func(*stores.RoomStore, context.Context), get func(*stores.RoomStore) []kanda.Room) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.app.Rooms
			fetch(s, cmd.Context())
			if err := storeErr(s); err != nil {
				return err
			}
			rooms := get(s)
			return e.emit(rooms, func(w io.Writer) { printRooms(w, rooms) })
		},
	}
	return withRoute(cmd, "/rooms")
}

func newRoomsShowCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a room and its participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.app.Rooms
			e.app.Router.Navigate("/rooms/" + args[0])
			room, err := s.FetchRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s.FetchParticipants(cmd.Context(), args[0])
			if err := storeErr(s); err != nil {
				return err
			}
			participants := s.Participants()
			isAdmin := s.IsCurrentRoomAdmin(e.app.CurrentUserID())

			report := struct {
				*kanda.Room
				Participants []kanda.RoomParticipant `json:"participants"`
				IsAdmin      bool                    `json:"is_admin"`
			}{room, participants, isAdmin}
			return e.emit(report, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", room.Name, room.ID)
				if room.Description != "" {
					fmt.Fprintln(w, room.Description)
				}
				fmt.Fprintf(w, "\nStatus: %s  Players: %d", room.Status, s.CurrentRoomPlayerCount())
				if room.MaxPlayers > 0 {
					fmt.Fprintf(w, "/%d", room.MaxPlayers)
				}
				fmt.Fprintf(w, "  Chapters: %d\n", room.TotalChapters)
				if isAdmin {
					fmt.Fprintln(w, "You administer this room.")
					if room.AccessCode != "" {
						fmt.Fprintf(w, "Access code: %s\n", room.AccessCode)
					}
				}
				fmt.Fprintln(w)
				printParticipants(w, participants)
			})
		},
	}
	return withRoute(cmd, "/rooms")
}

func newRoomsCreateCmd(e *env) *cobra.Command {
	var room kanda.Room
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room in a universe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Struct(room); err != nil {
				return fmt.Errorf("invalid room: %w", err)
			}
			created, err := e.app.Rooms.Create(cmd.Context(), room)
			if err != nil {
				return err
			}
			return e.emit(created, func(w io.Writer) {
				fmt.Fprintf(w, "Created room %s (%s)\n", created.Name, created.ID)
				if created.AccessCode != "" {
					fmt.Fprintf(w, "Access code: %s\n", created.AccessCode)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&room.Name, "name", "", "Room name")
	f.StringVar(&room.Description, "description", "", "Description")
	f.StringVar(&room.Universe, "universe", "", "Universe id")
	f.BoolVar(&room.IsPublic, "public", true, "List the room publicly")
	f.IntVar(&room.MaxPlayers, "max-players", 0, "Maximum number of players")
	f.IntVar(&room.TotalChapters, "chapters", 0, "Number of chapters")
	f.IntVar(&room.DiscussionTime, "discussion-time", 0, "Discussion time per chapter, in seconds")
	f.BoolVar(&room.AllowDiscussion, "discussion", false, "Allow discussion between chapters")
	return withRoute(cmd, "/rooms")
}

func newRoomsJoinCmd(e *env) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "join [id]",
		Short: "Join a room by id, or a private room by access code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				room *kanda.Room
				err  error
			)
			switch {
			case len(args) == 1:
				room, err = e.app.Rooms.Join(cmd.Context(), args[0], code)
			case code != "":
				room, err = e.app.Rooms.JoinWithCode(cmd.Context(), code)
			default:
				return errors.New("a room id or --code is required")
			}
			if err != nil {
				return fmt.Errorf("%s: %w", e.app.Rooms.Error(), err)
			}
			return e.emit(room, func(w io.Writer) {
				fmt.Fprintf(w, "Joined %s (%s)\n", room.Name, room.ID)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Access code of a private room")
	return withRoute(cmd, "/rooms")
}

func newRoomsLeaveCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leave <id>",
		Short: "Leave a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Rooms.Leave(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("%s: %w", e.app.Rooms.Error(), err)
			}
			return e.emit(map[string]string{"left": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Left %s\n", args[0])
			})
		},
	}
	return withRoute(cmd, "/rooms")
}

func newRoomsStartCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start the story in a room you administer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.app.Rooms.StartGame(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", e.app.Rooms.Error(), err)
			}
			return e.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s\nStory: %s\n", orText(res.Message, "Game started"), res.StoryID)
			})
		},
	}
	return withRoute(cmd, "/rooms")
}

func newRoomsParticipantsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participants <room-id>",
		Short: "List the players in a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.app.Rooms
			s.FetchParticipants(cmd.Context(), args[0])
			if err := storeErr(s); err != nil {
				return err
			}
			participants := s.Participants()
			return e.emit(participants, func(w io.Writer) { printParticipants(w, participants) })
		},
	}
	return withRoute(cmd, "/rooms")
}

func newRoomsReadyCmd(e *env) *cobra.Command {
	var notReady bool
	cmd := &cobra.Command{
		Use:   "ready <participant-id>",
		Short: "Mark yourself ready (or not) to start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := e.app.Rooms.SetReady(cmd.Context(), args[0], !notReady)
			if err != nil {
				return fmt.Errorf("%s: %w", e.app.Rooms.Error(), err)
			}
			return e.emit(p, func(w io.Writer) {
				fmt.Fprintf(w, "Participant %s ready: %t\n", p.ID, p.IsReady)
			})
		},
	}
	cmd.Flags().BoolVar(&notReady, "not", false, "Mark as not ready")
	return withRoute(cmd, "/rooms")
}

func newRoomsAddCharactersCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-characters <room-id> <character-id>...",
		Short: "Bring characters into a room",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := e.app.Rooms.AddCharacters(cmd.Context(), args[0], args[1:])
			if err != nil {
				return fmt.Errorf("%s: %w", e.app.Rooms.Error(), err)
			}
			return e.emit(p, func(w io.Writer) {
				fmt.Fprintf(w, "Joined as participant %s with %d character(s)\n", p.ID, len(p.Characters))
			})
		},
	}
	return withRoute(cmd, "/rooms")
}

func newRoomsNarrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "narrate <room-id>",
		Short: "Generate the next part of the story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.app.Client.Rooms.GenerateNarrative(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.emit(res, func(w io.Writer) { fmt.Fprintln(w, res.Narrative) })
		},
	}
	return withRoute(cmd, "/rooms")
}

type watchEvent struct {
	Kind    string              `json:"kind"`
	Story   *kanda.Story        `json:"story,omitempty"`
	Chapter *kanda.Chapter      `json:"chapter,omitempty"`
	Action  *kanda.PlayerAction `json:"action,omitempty"`
}

func printWatchEvent(w io.Writer, ev watcher.Event) {
	switch ev.Kind {
	case watcher.StoryStarted:
		fmt.Fprintf(w, "== %s ==\n", orText(ev.Story.Title, "Story "+ev.Story.ID))
	case watcher.ChapterAdded, watcher.ChapterUpdated:
		fmt.Fprintf(w, "\n--- Chapter %d (%s) ---\n%s\n", ev.Chapter.ChapterNumber, ev.Chapter.Status, ev.Chapter.Content)
	case watcher.ActionSubmitted:
		fmt.Fprintf(w, "> %s: %s\n", orText(ev.Action.CharacterName, orText(ev.Action.UserUsername, ev.Action.User)), ev.Action.ActionText)
	case watcher.StoryFinished:
		fmt.Fprintln(w, "\n== The End ==")
	}
}

func newRoomsWatchCmd(e *env) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <room-id>",
		Short: "Follow a room's story as it is written",
		Long: formatText(`
			Poll the room and print new chapters and player actions as they
			appear. Stops when the story finishes or on Ctrl-C. With --json
			each event is printed as one JSON object per line.
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e.app.Router.Navigate("/rooms/" + args[0])
			svc := watcher.NewService(watcher.ClientSource{Client: e.app.Client}, args[0], interval, func(ev watcher.Event) {
				if e.opts.json {
					json.NewEncoder(e.out).Encode(watchEvent{
						Kind:    ev.Kind.String(),
						Story:   ev.Story,
						Chapter: ev.Chapter,
						Action:  ev.Action,
					})
					return
				}
				printWatchEvent(e.out, ev)
			})
			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", watcher.DefaultPollInterval, "Time between polls")
	return withRoute(cmd, "/rooms")
}
