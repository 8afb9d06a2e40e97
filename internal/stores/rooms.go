package stores

import (
	"context"
	"slices"
	"sync"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/rs/zerolog/log"
)

const (
	msgLoadRooms        = "failed to load rooms"
	msgLoadMyRooms      = "failed to load your rooms"
	msgLoadJoinedRooms  = "failed to load joined rooms"
	msgLoadRoom         = "failed to load room"
	msgCreateRoom       = "failed to create room"
	msgJoinRoom         = "failed to join room"
	msgJoinWithCode     = "failed to join room with code"
	msgLeaveRoom        = "failed to leave room"
	msgStartGame        = "failed to start game"
	msgLoadParticipants = "failed to load participants"
	msgAddCharacters    = "failed to add characters"
	msgSetReady         = "failed to mark participant ready"
)

// RoomStore mirrors the rooms the user can see and the room being viewed.
type RoomStore struct {
	rooms        kanda.RoomService
	participants kanda.ParticipantService

	mu              sync.RWMutex
	publicRooms     []kanda.Room
	myRooms         []kanda.Room
	joinedRooms     []kanda.Room
	current         *kanda.Room
	participantList []kanda.RoomParticipant
	loading         bool
	err             string
	lastErr         error
}

func NewRoomStore(rooms kanda.RoomService, participants kanda.ParticipantService) *RoomStore {
	return &RoomStore{rooms: rooms, participants: participants}
}

func (s *RoomStore) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *RoomStore) finish(err error, def string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.err = errorMessage(err, def)
		log.Warn().Err(err).Msg(def)
	}
}

func (s *RoomStore) PublicRooms() []kanda.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.publicRooms)
}

func (s *RoomStore) MyRooms() []kanda.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.myRooms)
}

func (s *RoomStore) JoinedRooms() []kanda.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.joinedRooms)
}

func (s *RoomStore) CurrentRoom() *kanda.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	room := *s.current
	return &room
}

func (s *RoomStore) Participants() []kanda.RoomParticipant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.participantList)
}

func (s *RoomStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *RoomStore) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *RoomStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
	s.lastErr = nil
}

// Err returns the failure behind Error, for callers that need to branch on it.
func (s *RoomStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// AvailableRooms returns the public rooms still waiting for players.
func (s *RoomStore) AvailableRooms() []kanda.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []kanda.Room
	for _, r := range s.publicRooms {
		if r.Status == kanda.RoomWaiting {
			out = append(out, r)
		}
	}
	return out
}

func (s *RoomStore) CurrentRoomPlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.PlayerCount
}

// IsCurrentRoomAdmin reports whether userID administers the current room.
func (s *RoomStore) IsCurrentRoomAdmin(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && userID != "" && s.current.Admin == userID
}

func (s *RoomStore) fetchList(ctx context.Context, list func(context.Context) ([]kanda.Room, error), dst *[]kanda.Room, def string) {
	s.begin()
	rooms, err := list(ctx)
	if err == nil {
		s.mu.Lock()
		*dst = rooms
		s.mu.Unlock()
	}
	s.finish(err, def)
}

// FetchPublic loads the public rooms. Like the other list fetches it
// records failures in Error instead of returning them.
func (s *RoomStore) FetchPublic(ctx context.Context) {
	s.fetchList(ctx, s.rooms.ListPublic, &s.publicRooms, msgLoadRooms)
}

func (s *RoomStore) FetchMine(ctx context.Context) {
	s.fetchList(ctx, s.rooms.Mine, &s.myRooms, msgLoadMyRooms)
}

func (s *RoomStore) FetchJoined(ctx context.Context) {
	s.fetchList(ctx, s.rooms.Joined, &s.joinedRooms, msgLoadJoinedRooms)
}

func (s *RoomStore) FetchRoom(ctx context.Context, id string) (*kanda.Room, error) {
	s.begin()
	room, err := s.rooms.Get(ctx, id)
	if err == nil {
		s.mu.Lock()
		s.current = room
		s.mu.Unlock()
	}
	s.finish(err, msgLoadRoom)
	return room, err
}

func (s *RoomStore) Create(ctx context.Context, room kanda.Room) (*kanda.Room, error) {
	s.begin()
	created, err := s.rooms.Create(ctx, room)
	if err == nil {
		s.mu.Lock()
		s.myRooms = slices.Insert(s.myRooms, 0, *created)
		s.mu.Unlock()
	}
	s.finish(err, msgCreateRoom)
	return created, err
}

// enter makes room current and adds it to the joined list once.
func (s *RoomStore) enter(room *kanda.Room, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = room
	if !slices.ContainsFunc(s.joinedRooms, func(r kanda.Room) bool { return r.ID == id }) {
		s.joinedRooms = slices.Insert(s.joinedRooms, 0, *room)
	}
}

// Join joins room id. accessCode may be empty for public rooms.
func (s *RoomStore) Join(ctx context.Context, id, accessCode string) (*kanda.Room, error) {
	s.begin()
	room, err := s.rooms.Join(ctx, id, accessCode)
	if err == nil {
		s.enter(room, id)
	}
	s.finish(err, msgJoinRoom)
	return room, err
}

func (s *RoomStore) JoinWithCode(ctx context.Context, accessCode string) (*kanda.Room, error) {
	s.begin()
	room, err := s.rooms.JoinWithCode(ctx, accessCode)
	if err == nil {
		s.enter(room, room.ID)
	}
	s.finish(err, msgJoinWithCode)
	return room, err
}

// Leave leaves room id and drops it from the joined list. If it was the
// current room, the current room and its participants are cleared.
func (s *RoomStore) Leave(ctx context.Context, id string) error {
	s.begin()
	_, err := s.rooms.Leave(ctx, id)
	if err == nil {
		s.mu.Lock()
		s.joinedRooms = slices.DeleteFunc(s.joinedRooms, func(r kanda.Room) bool { return r.ID == id })
		leavingCurrent := s.current != nil && s.current.ID == id
		s.mu.Unlock()
		if leavingCurrent {
			s.ClearCurrentRoom()
		}
	}
	s.finish(err, msgLeaveRoom)
	return err
}

// StartGame starts the story in room id and marks it playing locally.
func (s *RoomStore) StartGame(ctx context.Context, id string) (*kanda.StartGameResponse, error) {
	s.begin()
	res, err := s.rooms.StartGame(ctx, id)
	if err == nil {
		s.mu.Lock()
		if s.current != nil && s.current.ID == id {
			s.current.Status = kanda.RoomPlaying
		}
		s.mu.Unlock()
	}
	s.finish(err, msgStartGame)
	return res, err
}

func (s *RoomStore) FetchParticipants(ctx context.Context, roomID string) {
	s.begin()
	participants, err := s.participants.ByRoom(ctx, roomID)
	if err == nil {
		s.mu.Lock()
		s.participantList = participants
		s.mu.Unlock()
	}
	s.finish(err, msgLoadParticipants)
}

func (s *RoomStore) AddCharacters(ctx context.Context, roomID string, characterIDs []string) (*kanda.RoomParticipant, error) {
	s.begin()
	p, err := s.participants.AddToRoom(ctx, roomID, characterIDs)
	if err == nil {
		s.mu.Lock()
		s.participantList = append(s.participantList, *p)
		s.mu.Unlock()
	}
	s.finish(err, msgAddCharacters)
	return p, err
}

// SetReady updates a participant's ready flag and replaces the local copy.
func (s *RoomStore) SetReady(ctx context.Context, participantID string, ready bool) (*kanda.RoomParticipant, error) {
	s.begin()
	p, err := s.participants.SetReady(ctx, participantID, ready)
	if err == nil {
		s.mu.Lock()
		if i := slices.IndexFunc(s.participantList, func(x kanda.RoomParticipant) bool { return x.ID == participantID }); i >= 0 {
			s.participantList[i] = *p
		}
		s.mu.Unlock()
	}
	s.finish(err, msgSetReady)
	return p, err
}

func (s *RoomStore) ClearCurrentRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.participantList = nil
}
