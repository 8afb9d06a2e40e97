package kanda

import (
	"context"
	"fmt"
	"net/http"
)

const (
	CharactersPath         = "/characters/"
	CharacterPath          = "/characters/{id}/"
	CreateDefaultPath      = "/characters/create-default/"
	EvaluateCharacterPath  = "/characters/evaluate/"
	GenerateBackgroundPath = "/characters/generate-background/"
)

// AIFilter is the balancing block stored with a character.
type AIFilter struct {
	PowerLevel            float64  `json:"powerLevel"`
	Strengths             []string `json:"strengths"`
	Flaws                 []string `json:"flaws"`
	OverallScore          *float64 `json:"overall_score,omitempty"`
	Comments              string   `json:"comments,omitempty"`
	SuggestedImprovements any      `json:"suggested_improvements,omitempty"`
	Accepted              bool     `json:"accepted"`
}

// Character is a player character as the server returns it.
type Character struct {
	ID                string    `json:"id,omitempty"`
	User              any       `json:"user,omitempty"`
	Name              string    `json:"name"`
	Archetype         string    `json:"archetype"`
	Gender            string    `json:"gender"`
	Age               int       `json:"age,omitempty"`
	PhysicalTraits    []string  `json:"physical_traits"`
	PersonalityTraits []string  `json:"personality_traits"`
	Background        string    `json:"background"`
	Weaknesses        []string  `json:"weaknesses,omitempty"`
	SpecialAbilities  string    `json:"special_abilities,omitempty"`
	Goals             string    `json:"goals,omitempty"`
	AIFilter          *AIFilter `json:"aiFilter,omitempty"`
	IsDefault         bool      `json:"is_default,omitempty"`
}

// EvaluationRequest is the character sheet sent for AI review.
type EvaluationRequest struct {
	Name                string `json:"name"`
	Age                 int    `json:"age"`
	Archetype           string `json:"archetype"`
	Gender              string `json:"gender"`
	PhysicalDescription string `json:"physical_description"`
	Personality         string `json:"personality"`
	Weaknesses          string `json:"weaknesses"`
	History             string `json:"history"`
	SpecialAbilities    string `json:"special_abilities"`
	Goals               string `json:"goals"`
}

// Suggestions is the nested suggestion block of an Evaluation.
type Suggestions struct {
	Personality string `json:"personality,omitempty"`
	Strengths   string `json:"strengths,omitempty"`
	Weaknesses  string `json:"weaknesses,omitempty"`
	History     string `json:"history,omitempty"`
}

// Evaluation is the server's AI review of a character sheet.
type Evaluation struct {
	OverallScore          float64      `json:"overall_score"`
	Comments              string       `json:"comments,omitempty"`
	SuggestedImprovements any          `json:"suggested_improvements,omitempty"`
	SuggestedPersonality  string       `json:"suggested_personality,omitempty"`
	SuggestedStrengths    string       `json:"suggested_strengths,omitempty"`
	SuggestedWeaknesses   string       `json:"suggested_weaknesses,omitempty"`
	SuggestedHistory      string       `json:"suggested_history,omitempty"`
	Suggestions           *Suggestions `json:"suggestions,omitempty"`
}

// BackgroundRequest asks the server to write a character background.
type BackgroundRequest struct {
	Name        string `json:"name"`
	Personality string `json:"personality"`
	Strengths   string `json:"strengths"`
	Weaknesses  string `json:"weaknesses"`
}

type BackgroundResponse struct {
	Background string `json:"background"`
}

// CharactersAPI wraps the /characters/ resource.
type CharactersAPI struct {
	gw *Gateway
}

func (c *CharactersAPI) List(ctx context.Context) ([]Character, error) {
	var result []Character
	if err := c.gw.doJSON(ctx, http.MethodGet, CharactersPath, nil, &result, nil); err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return result, nil
}

func (c *CharactersAPI) Create(ctx context.Context, ch Character) (*Character, error) {
	var result Character
	if err := c.gw.doJSON(ctx, http.MethodPost, CharactersPath, ch, &result, nil); err != nil {
		return nil, fmt.Errorf("create character: %w", err)
	}
	return &result, nil
}

func (c *CharactersAPI) Update(ctx context.Context, id string, ch Character) (*Character, error) {
	var result Character
	err := c.gw.doJSON(ctx, http.MethodPut, CharacterPath, ch, &result, &requestOptions{
		pathParams: map[string]string{"id": id},
	})
	if err != nil {
		return nil, fmt.Errorf("update character %s: %w", id, err)
	}
	return &result, nil
}

func (c *CharactersAPI) Delete(ctx context.Context, id string) error {
	err := c.gw.doJSON(ctx, http.MethodDelete, CharacterPath, nil, nil, &requestOptions{
		pathParams: map[string]string{"id": id},
	})
	if err != nil {
		return fmt.Errorf("delete character %s: %w", id, err)
	}
	return nil
}

// CreateDefault asks the server to create its stock character for the user.
func (c *CharactersAPI) CreateDefault(ctx context.Context) (*Character, error) {
	var result Character
	if err := c.gw.doJSON(ctx, http.MethodPost, CreateDefaultPath, nil, &result, nil); err != nil {
		return nil, fmt.Errorf("create default character: %w", err)
	}
	return &result, nil
}

// Evaluate runs the AI review without saving anything.
func (c *CharactersAPI) Evaluate(ctx context.Context, req EvaluationRequest) (*Evaluation, error) {
	var result Evaluation
	if err := c.gw.doJSON(ctx, http.MethodPost, EvaluateCharacterPath, req, &result, nil); err != nil {
		return nil, fmt.Errorf("evaluate character: %w", err)
	}
	return &result, nil
}

func (c *CharactersAPI) GenerateBackground(ctx context.Context, req BackgroundRequest) (string, error) {
	var result BackgroundResponse
	if err := c.gw.doJSON(ctx, http.MethodPost, GenerateBackgroundPath, req, &result, nil); err != nil {
		return "", fmt.Errorf("generate background: %w", err)
	}
	return result.Background, nil
}
