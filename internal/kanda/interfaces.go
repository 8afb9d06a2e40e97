package kanda

import "context"

// AccountService abstracts the account and session endpoints.
type AccountService interface {
	Register(ctx context.Context, reg Registration) (*RegisterResponse, error)
	// Login posts credentials; a 401 means bad credentials.
	Login(ctx context.Context, creds Credentials) (*LoginResponse, error)
	Activate(ctx context.Context, uid, token string) (*MessageResponse, error)
	ResendActivation(ctx context.Context, email string) (*MessageResponse, error)
	Logout(ctx context.Context) error
	Dashboard(ctx context.Context) (*DashboardResponse, error)
	// Health probes reachability without requiring a session.
	Health(ctx context.Context) (HealthResponse, error)
	// Verify reports the server's verdict on the current token.
	Verify(ctx context.Context) (*VerifyResponse, error)
}

// CharacterService abstracts the character endpoints.
type CharacterService interface {
	List(ctx context.Context) ([]Character, error)
	Create(ctx context.Context, ch Character) (*Character, error)
	Update(ctx context.Context, id string, ch Character) (*Character, error)
	Delete(ctx context.Context, id string) error
	CreateDefault(ctx context.Context) (*Character, error)
	Evaluate(ctx context.Context, req EvaluationRequest) (*Evaluation, error)
	GenerateBackground(ctx context.Context, req BackgroundRequest) (string, error)
}

type UniverseService interface {
	List(ctx context.Context) ([]Universe, error)
	Get(ctx context.Context, id string) (*Universe, error)
	Create(ctx context.Context, universe Universe) (*Universe, error)
	Update(ctx context.Context, id string, universe Universe) (*Universe, error)
	Delete(ctx context.Context, id string) error
}

type RoomService interface {
	ListPublic(ctx context.Context) ([]Room, error)
	Mine(ctx context.Context) ([]Room, error)
	Joined(ctx context.Context) ([]Room, error)
	Get(ctx context.Context, id string) (*Room, error)
	Create(ctx context.Context, room Room) (*Room, error)
	Update(ctx context.Context, id string, room Room) (*Room, error)
	Join(ctx context.Context, id, accessCode string) (*Room, error)
	JoinWithCode(ctx context.Context, accessCode string) (*Room, error)
	Leave(ctx context.Context, id string) (*MessageResponse, error)
	StartGame(ctx context.Context, id string) (*StartGameResponse, error)
	SubmitAction(ctx context.Context, id, chapterID, text string) (*PlayerAction, error)
	GenerateNarrative(ctx context.Context, id string) (*NarrativeResponse, error)
}

type ParticipantService interface {
	AddToRoom(ctx context.Context, roomID string, characterIDs []string) (*RoomParticipant, error)
	ByRoom(ctx context.Context, roomID string) ([]RoomParticipant, error)
	SetReady(ctx context.Context, participantID string, ready bool) (*RoomParticipant, error)
}

var (
	_ AccountService     = (*AccountsAPI)(nil)
	_ CharacterService   = (*CharactersAPI)(nil)
	_ UniverseService    = (*UniversesAPI)(nil)
	_ RoomService        = (*RoomsAPI)(nil)
	_ ParticipantService = (*ParticipantsAPI)(nil)
)
