package kanda

// Client groups the backend resources behind one Gateway.
type Client struct {
	Accounts     *AccountsAPI
	Characters   *CharactersAPI
	Universes    *UniversesAPI
	Rooms        *RoomsAPI
	Participants *ParticipantsAPI
	Stories      *StoriesAPI
	Chapters     *ChaptersAPI
	Actions      *ActionsAPI

	gw *Gateway
}

// NewClient creates a client whose resources all share gw.
func NewClient(gw *Gateway) *Client {
	return &Client{
		Accounts:     &AccountsAPI{gw: gw},
		Characters:   &CharactersAPI{gw: gw},
		Universes:    &UniversesAPI{gw: gw},
		Rooms:        &RoomsAPI{gw: gw},
		Participants: &ParticipantsAPI{gw: gw},
		Stories:      &StoriesAPI{gw: gw},
		Chapters:     &ChaptersAPI{gw: gw},
		Actions:      &ActionsAPI{gw: gw},
		gw:           gw,
	}
}

// Gateway returns the shared gateway.
func (c *Client) Gateway() *Gateway {
	return c.gw
}
