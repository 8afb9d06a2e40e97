package kanda

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCharacterService_Defaults(t *testing.T) {
	m := &MockCharacterService{}
	ctx := context.Background()

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	created, err := m.Create(ctx, Character{Name: "Lyra"})
	require.NoError(t, err)
	assert.Equal(t, "mock-character-id", created.ID)

	def, err := m.CreateDefault(ctx)
	require.NoError(t, err)
	assert.True(t, def.IsDefault)

	require.NoError(t, m.Delete(ctx, "c1"))
	require.Len(t, m.Calls, 4)
	assert.Equal(t, MockCall{Method: "Delete", Args: []any{"c1"}}, m.Calls[3])
}

func TestMockCharacterService_ConcurrentCalls(t *testing.T) {
	var mu sync.Mutex
	names := map[string]int{}
	m := &MockCharacterService{
		EvaluateFunc: func(ctx context.Context, req EvaluationRequest) (*Evaluation, error) {
			mu.Lock()
			names[req.Name]++
			mu.Unlock()
			return &Evaluation{OverallScore: 7}, nil
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eval, err := m.Evaluate(context.Background(), EvaluationRequest{Name: "Lyra"})
			assert.NoError(t, err)
			assert.Equal(t, 7.0, eval.OverallScore)
			_, _ = m.List(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, m.CallCount("Evaluate"))
	assert.Equal(t, 20, m.CallCount("List"))
	assert.Equal(t, 20, names["Lyra"])
}
