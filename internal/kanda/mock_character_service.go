package kanda

import (
	"context"
	"sync"
)

// MockCharacterService is a test double for CharacterService.
// Each method can be overridden with a custom function.
// If not overridden, methods return sensible defaults.
// Thread-safe for use in concurrent tests.
type MockCharacterService struct {
	ListFunc               func(ctx context.Context) ([]Character, error)
	CreateFunc             func(ctx context.Context, ch Character) (*Character, error)
	UpdateFunc             func(ctx context.Context, id string, ch Character) (*Character, error)
	DeleteFunc             func(ctx context.Context, id string) error
	CreateDefaultFunc      func(ctx context.Context) (*Character, error)
	EvaluateFunc           func(ctx context.Context, req EvaluationRequest) (*Evaluation, error)
	GenerateBackgroundFunc func(ctx context.Context, req BackgroundRequest) (string, error)

	mu sync.Mutex

	// Calls tracks all method invocations for assertions
	Calls []MockCall
}

// MockCall records a method call for test assertions.
type MockCall struct {
	Method string
	Args   []any
}

var _ CharacterService = (*MockCharacterService)(nil)

// CallCount returns how many times method was called.
func (m *MockCharacterService) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockCharacterService) List(ctx context.Context) ([]Character, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "List"})
	fn := m.ListFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return []Character{}, nil
}

func (m *MockCharacterService) Create(ctx context.Context, ch Character) (*Character, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Create", Args: []any{ch}})
	fn := m.CreateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, ch)
	}
	ch.ID = "mock-character-id"
	return &ch, nil
}

func (m *MockCharacterService) Update(ctx context.Context, id string, ch Character) (*Character, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Update", Args: []any{id, ch}})
	fn := m.UpdateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, ch)
	}
	ch.ID = id
	return &ch, nil
}

func (m *MockCharacterService) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Delete", Args: []any{id}})
	fn := m.DeleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

func (m *MockCharacterService) CreateDefault(ctx context.Context) (*Character, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "CreateDefault"})
	fn := m.CreateDefaultFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return &Character{ID: "mock-default-id", Name: "Default", IsDefault: true}, nil
}

func (m *MockCharacterService) Evaluate(ctx context.Context, req EvaluationRequest) (*Evaluation, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Evaluate", Args: []any{req}})
	fn := m.EvaluateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &Evaluation{OverallScore: 5}, nil
}

func (m *MockCharacterService) GenerateBackground(ctx context.Context, req BackgroundRequest) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GenerateBackground", Args: []any{req}})
	fn := m.GenerateBackgroundFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return "", nil
}
