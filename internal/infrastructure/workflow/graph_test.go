package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/student-insights/internal/domain/shared"
)

type trace struct {
	visited []string
}

func visit(name string) NodeFunc[trace] {
	return func(_ context.Context, s *trace) error {
		s.visited = append(s.visited, name)
		return nil
	}
}

func linear() *Graph[trace] {
	return New[trace]().
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddNode("c", visit("c")).
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", End).
		SetEntry("a")
}

func TestCompileAndInvoke(t *testing.T) {
	r, err := linear().Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.Steps())

	var s trace
	require.NoError(t, r.Invoke(context.Background(), &s))
	assert.Equal(t, []string{"a", "b", "c"}, s.visited)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		graph *Graph[trace]
		want  error
	}{
		{
			name:  "no entry",
			graph: New[trace]().AddNode("a", visit("a")).AddEdge("a", End),
			want:  ErrNoEntry,
		},
		{
			name:  "duplicate node",
			graph: New[trace]().AddNode("a", visit("a")).AddNode("a", visit("a")),
			want:  ErrDuplicateNode,
		},
		{
			name:  "unknown edge target",
			graph: New[trace]().AddNode("a", visit("a")).AddEdge("a", "x").SetEntry("a"),
			want:  ErrUnknownNode,
		},
		{
			name:  "dangling node",
			graph: New[trace]().AddNode("a", visit("a")).SetEntry("a"),
			want:  ErrNoTerminal,
		},
		{
			name: "cycle",
			graph: New[trace]().
				AddNode("a", visit("a")).AddNode("b", visit("b")).
				AddEdge("a", "b").AddEdge("b", "a").SetEntry("a"),
			want: ErrNoTerminal,
		},
		{
			name:  "unreachable",
			graph: linear().AddNode("orphan", visit("orphan")),
			want:  ErrUnreachable,
		},
		{
			name:  "second outgoing edge",
			graph: linear().AddEdge("a", "c"),
			want:  ErrDuplicateEdge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.graph.Compile()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInvoke_StepError(t *testing.T) {
	boom := errors.New("boom")
	r, err := New[trace]().
		AddNode("a", visit("a")).
		AddNode("b", func(context.Context, *trace) error { return boom }).
		AddNode("c", visit("c")).
		AddEdge("a", "b").AddEdge("b", "c").AddEdge("c", End).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	var s trace
	err = r.Invoke(context.Background(), &s)
	assert.ErrorIs(t, err, shared.ErrWorkflowFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, s.visited)
}

func TestInvoke_RecoversPanic(t *testing.T) {
	r, err := New[trace]().
		AddNode("a", func(context.Context, *trace) error { panic("nil map") }).
		AddEdge("a", End).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	err = r.Invoke(context.Background(), &trace{})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrWorkflowFailed)
	assert.Contains(t, err.Error(), "nil map")
}

func TestInvoke_StepLimit(t *testing.T) {
	r, err := linear().Compile(WithMaxSteps(2))
	require.NoError(t, err)

	err = r.Invoke(context.Background(), &trace{})
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestInvoke_Cancelled(t *testing.T) {
	r, err := linear().Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var s trace
	err = r.Invoke(ctx, &s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.visited)
}

func TestInvoke_NilState(t *testing.T) {
	r, err := linear().Compile()
	require.NoError(t, err)
	assert.ErrorIs(t, r.Invoke(context.Background(), nil), shared.ErrWorkflowFailed)
}
