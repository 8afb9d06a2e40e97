package kanda

import (
	"context"
	"fmt"
	"net/http"
)

const (
	UniversesPath = "/universes/"
	UniversePath  = "/universes/{id}/"

	RoomsPath             = "/rooms/"
	RoomPath              = "/rooms/{id}/"
	MyRoomsPath           = "/rooms/my_rooms/"
	JoinedRoomsPath       = "/rooms/joined_rooms/"
	JoinRoomPath          = "/rooms/{id}/join/"
	JoinWithCodePath      = "/rooms/join-with-code/"
	LeaveRoomPath         = "/rooms/{id}/leave/"
	StartGamePath         = "/rooms/{id}/start_game/"
	SubmitActionPath      = "/rooms/{id}/submit_action/"
	GenerateNarrativePath = "/rooms/{id}/generate_narrative/"

	ParticipantsPath       = "/room-participants/"
	ParticipantPath        = "/room-participants/{id}/"
	ParticipantsByRoomPath = "/room-participants/by_room/"

	StoriesPath       = "/stories/"
	StoryPath         = "/stories/{id}/"
	ChaptersPath      = "/chapters/"
	ChapterPath       = "/chapters/{id}/"
	PlayerActionsPath = "/player-actions/"
)

// Room statuses.
const (
	RoomWaiting   = "waiting"
	RoomPlaying   = "playing"
	RoomCompleted = "completed"
)

// Story status values.
const (
	StoryInProgress = "in_progress"
	StoryPaused     = "paused"
	StoryCompleted  = "completed"
)

type Universe struct {
	ID                   string `json:"id,omitempty"`
	Name                 string `json:"name" validate:"required,max=200"`
	Description          string `json:"description" validate:"required"`
	Context              string `json:"context" validate:"required"`
	Rules                string `json:"rules,omitempty"`
	CoverImage           string `json:"cover_image,omitempty"`
	BackgroundImage      string `json:"background_image,omitempty"`
	TimePeriod           string `json:"time_period,omitempty"`
	Location             string `json:"location,omitempty"`
	TechnologyLevel      string `json:"technology_level,omitempty"`
	MagicAllowed         bool   `json:"magic_allowed"`
	SupernaturalElements bool   `json:"supernatural_elements"`
	IsPublic             bool   `json:"is_public"`
	CreatedBy            string `json:"created_by,omitempty"`
	CreatedAt            string `json:"created_at,omitempty"`
	UpdatedAt            string `json:"updated_at,omitempty"`
}

type Room struct {
	ID              string   `json:"id,omitempty"`
	Name            string   `json:"name" validate:"required,max=200"`
	Description     string   `json:"description,omitempty"`
	Universe        string   `json:"universe" validate:"required"`
	IsPublic        bool     `json:"is_public"`
	AccessCode      string   `json:"access_code,omitempty"`
	MaxPlayers      int      `json:"max_players,omitempty" validate:"omitempty,min=1"`
	Admin           string   `json:"admin,omitempty"`
	Players         []string `json:"players,omitempty"`
	PlayerCount     int      `json:"player_count,omitempty"`
	Status          string   `json:"status,omitempty"`
	TotalChapters   int      `json:"total_chapters,omitempty" validate:"omitempty,min=1"`
	DiscussionTime  int      `json:"discussion_time,omitempty"`
	AllowDiscussion bool     `json:"allow_discussion"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
	UniverseName    string   `json:"universe_name,omitempty"`
	AdminUsername   string   `json:"admin_username,omitempty"`
}

type RoomParticipant struct {
	ID             string   `json:"id"`
	Room           string   `json:"room"`
	User           string   `json:"user"`
	Characters     []string `json:"characters"`
	JoinedAt       string   `json:"joined_at,omitempty"`
	IsReady        bool     `json:"is_ready"`
	UserUsername   string   `json:"user_username,omitempty"`
	CharacterNames []string `json:"character_names,omitempty"`
}

type Story struct {
	ID                 string  `json:"id"`
	Room               string  `json:"room"`
	Title              string  `json:"title"`
	TotalChapters      int     `json:"total_chapters"`
	CurrentChapter     int     `json:"current_chapter"`
	Status             string  `json:"status"`
	StartedAt          string  `json:"started_at,omitempty"`
	CompletedAt        *string `json:"completed_at,omitempty"`
	RoomName           string  `json:"room_name,omitempty"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

type Chapter struct {
	ID            string  `json:"id"`
	Story         string  `json:"story"`
	ChapterNumber int     `json:"chapter_number"`
	Content       string  `json:"content"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	WordCount     int     `json:"word_count"`
}

type PlayerAction struct {
	ID            string `json:"id"`
	Chapter       string `json:"chapter"`
	User          string `json:"user"`
	Character     string `json:"character"`
	ActionText    string `json:"action_text"`
	SubmittedAt   string `json:"submitted_at,omitempty"`
	UserUsername  string `json:"user_username,omitempty"`
	CharacterName string `json:"character_name,omitempty"`
}

// StartGameResponse is returned when a room's story begins.
type StartGameResponse struct {
	Message string `json:"message"`
	StoryID string `json:"story_id"`
}

// NarrativeResponse carries the generated chapter text. ChapterID is empty
// once the story has finished.
type NarrativeResponse struct {
	Narrative string `json:"narrative"`
	ChapterID string `json:"chapter_id,omitempty"`
}

func idParam(id string) *requestOptions {
	return &requestOptions{pathParams: map[string]string{"id": id}}
}

// UniversesAPI wraps /universes/.
type UniversesAPI struct {
	gw *Gateway
}

func (u *UniversesAPI) List(ctx context.Context) ([]Universe, error) {
	var result []Universe
	if err := u.gw.doJSON(ctx, http.MethodGet, UniversesPath, nil, &result, nil); err != nil {
		return nil, fmt.Errorf("list universes: %w", err)
	}
	return result, nil
}

func (u *UniversesAPI) Get(ctx context.Context, id string) (*Universe, error) {
	var result Universe
	if err := u.gw.doJSON(ctx, http.MethodGet, UniversePath, nil, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("get universe %s: %w", id, err)
	}
	return &result, nil
}

func (u *UniversesAPI) Create(ctx context.Context, universe Universe) (*Universe, error) {
	var result Universe
	if err := u.gw.doJSON(ctx, http.MethodPost, UniversesPath, universe, &result, nil); err != nil {
		return nil, fmt.Errorf("create universe: %w", err)
	}
	return &result, nil
}

func (u *UniversesAPI) Update(ctx context.Context, id string, universe Universe) (*Universe, error) {
	var result Universe
	if err := u.gw.doJSON(ctx, http.MethodPut, UniversePath, universe, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("update universe %s: %w", id, err)
	}
	return &result, nil
}

func (u *UniversesAPI) Delete(ctx context.Context, id string) error {
	if err := u.gw.doJSON(ctx, http.MethodDelete, UniversePath, nil, nil, idParam(id)); err != nil {
		return fmt.Errorf("delete universe %s: %w", id, err)
	}
	return nil
}

// RoomsAPI wraps /rooms/ and its actions.
type RoomsAPI struct {
	gw *Gateway
}

func (r *RoomsAPI) listAt(ctx context.Context, path string) ([]Room, error) {
	var result []Room
	if err := r.gw.doJSON(ctx, http.MethodGet, path, nil, &result, nil); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return result, nil
}

// ListPublic returns the public rooms.
func (r *RoomsAPI) ListPublic(ctx context.Context) ([]Room, error) {
	return r.listAt(ctx, RoomsPath)
}

// Mine returns the rooms the user administers.
func (r *RoomsAPI) Mine(ctx context.Context) ([]Room, error) {
	return r.listAt(ctx, MyRoomsPath)
}

// Joined returns the rooms the user participates in.
func (r *RoomsAPI) Joined(ctx context.Context) ([]Room, error) {
	return r.listAt(ctx, JoinedRoomsPath)
}

func (r *RoomsAPI) Get(ctx context.Context, id string) (*Room, error) {
	var result Room
	if err := r.gw.doJSON(ctx, http.MethodGet, RoomPath, nil, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return &result, nil
}

func (r *RoomsAPI) Create(ctx context.Context, room Room) (*Room, error) {
	var result Room
	if err := r.gw.doJSON(ctx, http.MethodPost, RoomsPath, room, &result, nil); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return &result, nil
}

func (r *RoomsAPI) Update(ctx context.Context, id string, room Room) (*Room, error) {
	var result Room
	if err := r.gw.doJSON(ctx, http.MethodPut, RoomPath, room, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("update room %s: %w", id, err)
	}
	return &result, nil
}

// Join joins a room. accessCode is only sent when non-empty; private rooms
// require it.
func (r *RoomsAPI) Join(ctx context.Context, id, accessCode string) (*Room, error) {
	body := map[string]string{}
	if accessCode != "" {
		body["access_code"] = accessCode
	}
	var result Room
	if err := r.gw.doJSON(ctx, http.MethodPost, JoinRoomPath, body, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("join room %s: %w", id, err)
	}
	return &result, nil
}

// JoinWithCode joins the private room identified by accessCode.
func (r *RoomsAPI) JoinWithCode(ctx context.Context, accessCode string) (*Room, error) {
	var result Room
	body := map[string]string{"access_code": accessCode}
	if err := r.gw.doJSON(ctx, http.MethodPost, JoinWithCodePath, body, &result, nil); err != nil {
		return nil, fmt.Errorf("join room with code: %w", err)
	}
	return &result, nil
}

func (r *RoomsAPI) Leave(ctx context.Context, id string) (*MessageResponse, error) {
	var result MessageResponse
	if err := r.gw.doJSON(ctx, http.MethodPost, LeaveRoomPath, nil, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("leave room %s: %w", id, err)
	}
	return &result, nil
}

// StartGame creates the room's story. Only the room admin may call it.
func (r *RoomsAPI) StartGame(ctx context.Context, id string) (*StartGameResponse, error) {
	var result StartGameResponse
	if err := r.gw.doJSON(ctx, http.MethodPost, StartGamePath, nil, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("start game in room %s: %w", id, err)
	}
	return &result, nil
}

// SubmitAction posts an action for chapterID in the room's active story.
func (r *RoomsAPI) SubmitAction(ctx context.Context, id, chapterID, text string) (*PlayerAction, error) {
	var result PlayerAction
	body := map[string]string{"chapter": chapterID, "action_text": text}
	if err := r.gw.doJSON(ctx, http.MethodPost, SubmitActionPath, body, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("submit action in room %s: %w", id, err)
	}
	return &result, nil
}

// GenerateNarrative advances the room's story by one chapter.
func (r *RoomsAPI) GenerateNarrative(ctx context.Context, id string) (*NarrativeResponse, error) {
	var result NarrativeResponse
	if err := r.gw.doJSON(ctx, http.MethodPost, GenerateNarrativePath, nil, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("generate narrative in room %s: %w", id, err)
	}
	return &result, nil
}

// ParticipantsAPI wraps /room-participants/.
type ParticipantsAPI struct {
	gw *Gateway
}

// AddToRoom assigns characters to the user's seat in a room.
func (p *ParticipantsAPI) AddToRoom(ctx context.Context, roomID string, characterIDs []string) (*RoomParticipant, error) {
	var result RoomParticipant
	body := map[string]any{"room": roomID, "characters": characterIDs}
	if err := p.gw.doJSON(ctx, http.MethodPost, ParticipantsPath, body, &result, nil); err != nil {
		return nil, fmt.Errorf("add characters to room %s: %w", roomID, err)
	}
	return &result, nil
}

func (p *ParticipantsAPI) ByRoom(ctx context.Context, roomID string) ([]RoomParticipant, error) {
	var result []RoomParticipant
	err := p.gw.doJSON(ctx, http.MethodGet, ParticipantsByRoomPath, nil, &result, &requestOptions{
		query: map[string]string{"room_id": roomID},
	})
	if err != nil {
		return nil, fmt.Errorf("list participants of room %s: %w", roomID, err)
	}
	return result, nil
}

func (p *ParticipantsAPI) SetReady(ctx context.Context, participantID string, ready bool) (*RoomParticipant, error) {
	var result RoomParticipant
	body := map[string]bool{"is_ready": ready}
	if err := p.gw.doJSON(ctx, http.MethodPatch, ParticipantPath, body, &result, idParam(participantID)); err != nil {
		return nil, fmt.Errorf("set participant %s ready: %w", participantID, err)
	}
	return &result, nil
}

// StoriesAPI wraps /stories/.
type StoriesAPI struct {
	gw *Gateway
}

// ByRoom returns the latest story of a room, or nil when none has started.
func (s *StoriesAPI) ByRoom(ctx context.Context, roomID string) (*Story, error) {
	var result Story
	err := s.gw.doJSON(ctx, http.MethodGet, StoriesPath, nil, &result, &requestOptions{
		query: map[string]string{"room": roomID},
	})
	if err != nil {
		return nil, fmt.Errorf("get story of room %s: %w", roomID, err)
	}
	if result.ID == "" {
		return nil, nil
	}
	return &result, nil
}

func (s *StoriesAPI) Get(ctx context.Context, id string) (*Story, error) {
	var result Story
	if err := s.gw.doJSON(ctx, http.MethodGet, StoryPath, nil, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("get story %s: %w", id, err)
	}
	return &result, nil
}

// ChaptersAPI wraps /chapters/.
type ChaptersAPI struct {
	gw *Gateway
}

// ByStory returns a story's chapters ordered by number.
func (c *ChaptersAPI) ByStory(ctx context.Context, storyID string) ([]Chapter, error) {
	var result []Chapter
	err := c.gw.doJSON(ctx, http.MethodGet, ChaptersPath, nil, &result, &requestOptions{
		query: map[string]string{"story": storyID},
	})
	if err != nil {
		return nil, fmt.Errorf("list chapters of story %s: %w", storyID, err)
	}
	return result, nil
}

func (c *ChaptersAPI) Get(ctx context.Context, id string) (*Chapter, error) {
	var result Chapter
	if err := c.gw.doJSON(ctx, http.MethodGet, ChapterPath, nil, &result, idParam(id)); err != nil {
		return nil, fmt.Errorf("get chapter %s: %w", id, err)
	}
	return &result, nil
}

// ActionsAPI wraps /player-actions/.
type ActionsAPI struct {
	gw *Gateway
}

func (a *ActionsAPI) Submit(ctx context.Context, chapterID, characterID, text string) (*PlayerAction, error) {
	var result PlayerAction
	body := map[string]string{
		"chapter":     chapterID,
		"character":   characterID,
		"action_text": text,
	}
	if err := a.gw.doJSON(ctx, http.MethodPost, PlayerActionsPath, body, &result, nil); err != nil {
		return nil, fmt.Errorf("submit action: %w", err)
	}
	return &result, nil
}

func (a *ActionsAPI) ByChapter(ctx context.Context, chapterID string) ([]PlayerAction, error) {
	var result []PlayerAction
	err := a.gw.doJSON(ctx, http.MethodGet, PlayerActionsPath, nil, &result, &requestOptions{
		query: map[string]string{"chapter": chapterID},
	})
	if err != nil {
		return nil, fmt.Errorf("list actions of chapter %s: %w", chapterID, err)
	}
	return result, nil
}
