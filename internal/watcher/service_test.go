package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	story    *kanda.Story
	chapters []kanda.Chapter
	actions  map[string][]kanda.PlayerAction
	err      error
	polls    int
}

func (f *fakeSource) StoryByRoom(ctx context.Context, roomID string) (*kanda.Story, error) {
	f.polls++
	if f.err != nil {
		return nil, f.err
	}
	return f.story, nil
}

func (f *fakeSource) Chapters(ctx context.Context, storyID string) ([]kanda.Chapter, error) {
	return f.chapters, nil
}

func (f *fakeSource) Actions(ctx context.Context, chapterID string) ([]kanda.PlayerAction, error) {
	return f.actions[chapterID], nil
}

func kinds(events []Event) []EventKind {
	var out []EventKind
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestPoll_ReportsOnlyNewThings(t *testing.T) {
	src := &fakeSource{actions: map[string][]kanda.PlayerAction{}}
	var events []Event
	s := NewService(src, "r1", time.Second, func(e Event) { events = append(events, e) })
	ctx := context.Background()

	done, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, events, "no story yet")

	src.story = &kanda.Story{ID: "s1", Status: kanda.StoryInProgress}
	src.chapters = []kanda.Chapter{{ID: "ch1", ChapterNumber: 1, Status: "writing", Content: "Era una noche"}}
	src.actions["ch1"] = []kanda.PlayerAction{{ID: "a1", ActionText: "Abro la puerta"}}

	_, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []EventKind{StoryStarted, ChapterAdded, ActionSubmitted}, kinds(events))

	events = nil
	_, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, events, "nothing changed")

	src.chapters[0].Content = "Era una noche oscura"
	src.actions["ch1"] = append(src.actions["ch1"], kanda.PlayerAction{ID: "a2"})
	_, err = s.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, []EventKind{ChapterUpdated, ActionSubmitted}, kinds(events))
	assert.Equal(t, "a2", events[1].Action.ID)

	events = nil
	src.story = &kanda.Story{ID: "s1", Status: kanda.StoryCompleted}
	done, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []EventKind{StoryFinished}, kinds(events))
}

func TestRun_StopsWhenStoryFinished(t *testing.T) {
	src := &fakeSource{story: &kanda.Story{ID: "s1", Status: kanda.StoryCompleted}}
	var events []Event
	s := NewService(src, "r1", 0, func(e Event) { events = append(events, e) })

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []EventKind{StoryStarted, StoryFinished}, kinds(events))
	assert.Equal(t, 1, src.polls)
}

func TestRun_FatalError(t *testing.T) {
	src := &fakeSource{err: &kanda.APIError{Kind: kanda.KindForbidden, Status: 403}}
	s := NewService(src, "r1", 0, func(Event) {})

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, kanda.ErrForbidden)
}

func TestRun_TransientErrorRetriesUntilCancelled(t *testing.T) {
	src := &fakeSource{err: &kanda.APIError{Kind: kanda.KindNetwork, Err: errors.New("connection refused")}}
	s := NewService(src, "r1", 0, func(Event) {})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
	assert.Equal(t, 1, src.polls, "the next poll waits for the ticker")
}

func TestNewService_MinInterval(t *testing.T) {
	s := NewService(&fakeSource{}, "r1", time.Millisecond, nil)
	assert.Equal(t, MinPollInterval, s.interval)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "ChapterAdded", ChapterAdded.String())
	assert.Equal(t, "Unknown", EventKind(99).String())
}
