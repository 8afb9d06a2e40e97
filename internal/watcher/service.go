// Package watcher follows a room's story by polling the backend and
// reporting chapters and player actions it has not seen before.
package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPollInterval is the time between polling cycles.
	DefaultPollInterval = 10 * time.Second

	// MinPollInterval keeps the watcher from hammering the backend.
	MinPollInterval = 2 * time.Second
)

// EventKind identifies what changed.
type EventKind int

const (
	StoryStarted EventKind = iota
	ChapterAdded
	ChapterUpdated
	ActionSubmitted
	StoryFinished
)

func (k EventKind) String() string {
	switch k {
	case StoryStarted:
		return "StoryStarted"
	case ChapterAdded:
		return "ChapterAdded"
	case ChapterUpdated:
		return "ChapterUpdated"
	case ActionSubmitted:
		return "ActionSubmitted"
	case StoryFinished:
		return "StoryFinished"
	default:
		return "Unknown"
	}
}

// Event is one change observed in the room.
type Event struct {
	Kind    EventKind
	Story   *kanda.Story
	Chapter *kanda.Chapter
	Action  *kanda.PlayerAction
}

// Source is the slice of the API the watcher reads.
type Source interface {
	StoryByRoom(ctx context.Context, roomID string) (*kanda.Story, error)
	Chapters(ctx context.Context, storyID string) ([]kanda.Chapter, error)
	Actions(ctx context.Context, chapterID string) ([]kanda.PlayerAction, error)
}

// ClientSource reads through a kanda.Client.
type ClientSource struct {
	Client *kanda.Client
}

func (s ClientSource) StoryByRoom(ctx context.Context, roomID string) (*kanda.Story, error) {
	return s.Client.Stories.ByRoom(ctx, roomID)
}

func (s ClientSource) Chapters(ctx context.Context, storyID string) ([]kanda.Chapter, error) {
	return s.Client.Chapters.ByStory(ctx, storyID)
}

func (s ClientSource) Actions(ctx context.Context, chapterID string) ([]kanda.PlayerAction, error) {
	return s.Client.Actions.ByChapter(ctx, chapterID)
}

// Service polls one room. It is not safe for concurrent use; run one
// Service per room.
type Service struct {
	source   Source
	roomID   string
	interval time.Duration
	notify   func(Event)

	storyID      string
	storyStatus  string
	chapterState map[string]string
	seenActions  map[string]bool
}

// NewService creates a watcher for roomID. interval is raised to
// MinPollInterval when lower.
func NewService(source Source, roomID string, interval time.Duration, notify func(Event)) *Service {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return &Service{
		source:       source,
		roomID:       roomID,
		interval:     interval,
		notify:       notify,
		chapterState: make(map[string]string),
		seenActions:  make(map[string]bool),
	}
}

// Run polls until ctx is cancelled or the story finishes. Network failures,
// 5xx and 429 responses are retried on the next tick; any other error ends
// the loop.
func (s *Service) Run(ctx context.Context) error {
	log.Info().Str("room", s.roomID).Dur("interval", s.interval).Msg("starting room watcher")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		done, err := s.Poll(ctx)
		if err != nil {
			if !isTransient(err) {
				return err
			}
			log.Warn().Err(err).Str("room", s.roomID).Msg("poll failed, retrying")
		}
		if done {
			log.Info().Str("room", s.roomID).Msg("story finished, watcher stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			log.Info().Str("room", s.roomID).Msg("room watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one cycle and reports whether the story has finished.
func (s *Service) Poll(ctx context.Context) (bool, error) {
	story, err := s.source.StoryByRoom(ctx, s.roomID)
	if err != nil {
		return false, err
	}
	if story == nil {
		log.Debug().Str("room", s.roomID).Msg("no story yet")
		return false, nil
	}

	if story.ID != s.storyID {
		s.storyID = story.ID
		s.storyStatus = ""
		s.notify(Event{Kind: StoryStarted, Story: story})
	}

	chapters, err := s.source.Chapters(ctx, story.ID)
	if err != nil {
		return false, err
	}
	for i := range chapters {
		if err := s.processChapter(ctx, story, &chapters[i]); err != nil {
			return false, err
		}
	}

	finished := story.Status == kanda.StoryCompleted
	if finished && s.storyStatus != kanda.StoryCompleted {
		s.notify(Event{Kind: StoryFinished, Story: story})
	}
	s.storyStatus = story.Status
	return finished, nil
}

func (s *Service) processChapter(ctx context.Context, story *kanda.Story, ch *kanda.Chapter) error {
	prev, seen := s.chapterState[ch.ID]
	fingerprint := ch.Status + "\x00" + ch.Content
	switch {
	case !seen:
		s.notify(Event{Kind: ChapterAdded, Story: story, Chapter: ch})
	case prev != fingerprint:
		s.notify(Event{Kind: ChapterUpdated, Story: story, Chapter: ch})
	}
	s.chapterState[ch.ID] = fingerprint

	actions, err := s.source.Actions(ctx, ch.ID)
	if err != nil {
		return err
	}
	for i := range actions {
		if s.seenActions[actions[i].ID] {
			continue
		}
		s.seenActions[actions[i].ID] = true
		s.notify(Event{Kind: ActionSubmitted, Story: story, Chapter: ch, Action: &actions[i]})
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, kanda.ErrNetwork) || errors.Is(err, kanda.ErrServer) || errors.Is(err, kanda.ErrRateLimited)
}
