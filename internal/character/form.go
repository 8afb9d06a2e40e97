// Package character prepares character sheets for the backend: form
// handling, payload conversion and the AI evaluation workflow.
package character

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/raine/kanda-client/internal/kanda"
)

// DefaultArchetype is sent when the user did not pick one.
const DefaultArchetype = "Aventurero"

// DefaultPowerLevel is used for characters saved without an evaluation.
const DefaultPowerLevel = 5

// Form is the editable character sheet. List-like fields are
// comma-separated free text.
type Form struct {
	Name                string `json:"name" validate:"required,max=100"`
	Age                 string `json:"age" validate:"omitempty,numeric"`
	Gender              string `json:"gender" validate:"max=50"`
	PhysicalDescription string `json:"physical_description"`
	Personality         string `json:"personality"`
	History             string `json:"history"`
	Strengths           string `json:"strengths"`
	Weaknesses          string `json:"weaknesses"`
	SpecialAbilities    string `json:"special_abilities"`
	Goals               string `json:"goals"`
	Archetype           string `json:"archetype" validate:"max=100"`
}

// NewForm returns an empty form with the default archetype.
func NewForm() Form {
	return Form{Archetype: DefaultArchetype}
}

// FormFromCharacter fills a form from a saved character for editing.
func FormFromCharacter(c kanda.Character) Form {
	f := NewForm()
	f.Name = c.Name
	if c.Age > 0 {
		f.Age = strconv.Itoa(c.Age)
	}
	f.Gender = c.Gender
	f.PhysicalDescription = strings.Join(c.PhysicalTraits, ", ")
	f.Personality = strings.Join(c.PersonalityTraits, ", ")
	f.History = c.Background
	f.Weaknesses = strings.Join(c.Weaknesses, ", ")
	f.SpecialAbilities = c.SpecialAbilities
	f.Goals = c.Goals
	if c.Archetype != "" {
		f.Archetype = c.Archetype
	}
	if c.AIFilter != nil {
		f.Strengths = strings.Join(c.AIFilter.Strengths, ", ")
	}
	return f
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the form before it is sent anywhere.
func (f Form) Validate() error {
	return validate.Struct(f)
}

// SplitList turns comma-separated text into trimmed, non-empty items.
func SplitList(s string) []string {
	items := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func single(s string) []string {
	if s == "" {
		return []string{}
	}
	return []string{s}
}

// PrepareEvaluation builds the evaluation request. An unparsable age is
// sent as 0.
func PrepareEvaluation(f Form) kanda.EvaluationRequest {
	age, err := strconv.Atoi(strings.TrimSpace(f.Age))
	if err != nil {
		age = 0
	}
	archetype := f.Archetype
	if archetype == "" {
		archetype = DefaultArchetype
	}
	return kanda.EvaluationRequest{
		Name:                f.Name,
		Age:                 age,
		Archetype:           archetype,
		Gender:              f.Gender,
		PhysicalDescription: f.PhysicalDescription,
		Personality:         f.Personality,
		Weaknesses:          f.Weaknesses,
		History:             f.History,
		SpecialAbilities:    f.SpecialAbilities,
		Goals:               f.Goals,
	}
}

// BuildPayload converts a form into the character sent to the server. With
// an evaluation the AI filter is marked accepted and takes its score as the
// power level.
func BuildPayload(f Form, eval *kanda.Evaluation) kanda.Character {
	age, _ := strconv.Atoi(strings.TrimSpace(f.Age))
	c := kanda.Character{
		Name:              f.Name,
		Age:               age,
		Gender:            f.Gender,
		Archetype:         f.Archetype,
		PhysicalTraits:    single(f.PhysicalDescription),
		PersonalityTraits: single(f.Personality),
		Weaknesses:        SplitList(f.Weaknesses),
		Background:        f.History,
		SpecialAbilities:  f.SpecialAbilities,
		Goals:             f.Goals,
	}

	filter := &kanda.AIFilter{
		PowerLevel: DefaultPowerLevel,
		Strengths:  SplitList(f.Strengths),
		Flaws:      SplitList(f.Weaknesses),
	}
	if eval != nil {
		score := eval.OverallScore
		filter.OverallScore = &score
		filter.Comments = eval.Comments
		filter.SuggestedImprovements = eval.SuggestedImprovements
		filter.Accepted = true
		if score != 0 {
			filter.PowerLevel = score
		}
	}
	c.AIFilter = filter
	return c
}

// ApplySuggestions copies the evaluation's suggestions into the form. The
// nested suggestion block wins over the flat suggested_* fields.
func ApplySuggestions(f *Form, eval kanda.Evaluation) {
	if eval.SuggestedPersonality != "" {
		f.Personality = eval.SuggestedPersonality
	}
	if eval.SuggestedStrengths != "" {
		f.Strengths = eval.SuggestedStrengths
	}
	if eval.SuggestedWeaknesses != "" {
		f.Weaknesses = eval.SuggestedWeaknesses
	}
	if eval.SuggestedHistory != "" {
		f.History = eval.SuggestedHistory
	}

	s := eval.Suggestions
	if s == nil {
		return
	}
	if s.Personality != "" {
		f.Personality = s.Personality
	}
	if s.Strengths != "" {
		f.Strengths = s.Strengths
	}
	if s.Weaknesses != "" {
		f.Weaknesses = s.Weaknesses
	}
	if s.History != "" {
		f.History = s.History
	}
}
