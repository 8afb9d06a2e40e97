package character

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"text/template"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/rs/zerolog/log"
)

var (
	ErrEvaluationInProgress = errors.New("evaluation already in progress")
	ErrIncompleteCharacter  = errors.New("character data incomplete: name is required")
)

const defaultEvaluationError = "failed to evaluate character"

var fallbackBackgrounds = []*template.Template{
	template.Must(template.New("village").Parse(
		`{{.Name}} grew up in a small village and learned the value of hard work early. ` +
			`A {{.Personality}} nature was shaped by the hardships of those years. ` +
			`Strengths in {{.Strengths}} carried them through difficult times, ` +
			`though weaknesses in {{.Weaknesses}} sometimes brought trouble.`)),
	template.Must(template.New("youth").Parse(
		`From a young age {{.Name}} showed a {{.Personality}} personality that set them apart. ` +
			`Over the years they became known for exceptional skill in {{.Strengths}}. ` +
			`Struggles with {{.Weaknesses}} taught them hard lessons in humility.`)),
	template.Must(template.New("renown").Parse(
		`{{.Name}} is known for a {{.Personality}} nature formed during their early years. ` +
			`Mastery of {{.Strengths}} has opened many doors, ` +
			`but they still work constantly to overcome their trouble with {{.Weaknesses}}.`)),
}

// Evaluator runs the AI review workflow for one character sheet. Only one
// evaluation may be in flight at a time.
type Evaluator struct {
	api  kanda.CharacterService
	pick func(n int) int

	mu           sync.RWMutex
	loading      bool
	requested    bool
	evaluation   *kanda.Evaluation
	errorMessage string
}

// NewEvaluator creates an evaluator backed by api.
func NewEvaluator(api kanda.CharacterService) *Evaluator {
	return &Evaluator{api: api, pick: rand.Intn}
}

// EvaluationState is a snapshot of the evaluator.
type EvaluationState struct {
	Requested  bool
	Loading    bool
	Evaluation *kanda.Evaluation
	Error      string
}

func (e *Evaluator) State() EvaluationState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EvaluationState{
		Requested:  e.requested,
		Loading:    e.loading,
		Evaluation: e.evaluation,
		Error:      e.errorMessage,
	}
}

// Evaluate sends the form for review and records the result.
func (e *Evaluator) Evaluate(ctx context.Context, f Form) (*kanda.Evaluation, error) {
	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return nil, ErrEvaluationInProgress
	}
	e.loading = true
	e.errorMessage = ""
	e.mu.Unlock()

	eval, err := e.api.Evaluate(ctx, PrepareEvaluation(f))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading = false
	if err != nil {
		log.Warn().Err(err).Str("name", f.Name).Msg("character evaluation failed")
		e.errorMessage = evaluationMessage(err)
		return nil, err
	}
	e.evaluation = eval
	e.requested = true
	return eval, nil
}

func evaluationMessage(err error) string {
	var apiErr *kanda.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return defaultEvaluationError
}

// Accept applies the last evaluation's suggestions to f. It reports false
// when there is nothing to apply.
func (e *Evaluator) Accept(f *Form) bool {
	e.mu.RLock()
	eval := e.evaluation
	e.mu.RUnlock()
	if eval == nil || f == nil {
		return false
	}
	ApplySuggestions(f, *eval)
	return true
}

// Reset forgets the last evaluation.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requested = false
	e.evaluation = nil
	e.errorMessage = ""
}

// GenerateBackground asks the server for a background. When the server
// call fails a background is written locally from a template instead.
func (e *Evaluator) GenerateBackground(ctx context.Context, f Form) (string, error) {
	if f.Name == "" {
		return "", ErrIncompleteCharacter
	}

	bg, err := e.api.GenerateBackground(ctx, kanda.BackgroundRequest{
		Name:        f.Name,
		Personality: f.Personality,
		Strengths:   f.Strengths,
		Weaknesses:  f.Weaknesses,
	})
	if err == nil && bg != "" {
		return bg, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("background generation failed, using local fallback")
	}
	return e.fallbackBackground(f)
}

func (e *Evaluator) fallbackBackground(f Form) (string, error) {
	tmpl := fallbackBackgrounds[e.pick(len(fallbackBackgrounds))]
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, f); err != nil {
		return "", fmt.Errorf("failed to render fallback background: %w", err)
	}
	return buf.String(), nil
}

// Save creates the character, or updates it when id is set.
func Save(ctx context.Context, api kanda.CharacterService, payload kanda.Character, id string) (*kanda.Character, error) {
	if id != "" {
		return api.Update(ctx, id, payload)
	}
	return api.Create(ctx, payload)
}
