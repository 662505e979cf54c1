package promptmgr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		vars    map[string]any
		want    string
		wantErr bool
	}{
		{"simple", "Hi {x}", map[string]any{"x": "A"}, "Hi A", false},
		{"missing key", "Hi {x}", map[string]any{"y": "B"}, "Hi {x}", true},
		{"empty vars", "Hi {x}", map[string]any{}, "Hi {x}", false},
		{"nil vars", "Hi {x}", nil, "Hi {x}", false},
		{"repeated", "{a}{a}-{b}", map[string]any{"a": 1, "b": true}, "11-true", false},
		{"single pass", "{a}", map[string]any{"a": "{b}", "b": "no"}, "{b}", false},
		{"partial missing leaves all", "{a} {b}", map[string]any{"a": "x"}, "{a} {b}", true},
		{"non identifier braces kept", `{"json": 1} {a}`, map[string]any{"a": "x"}, `{"json": 1} x`, false},
		{"no placeholders", "plain", map[string]any{"a": "x"}, "plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Substitute(tt.content, tt.vars)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMissingVariable)
				var ve *VariableError
				require.ErrorAs(t, err, &ve)
				assert.NotEmpty(t, ve.Variable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"name", "time"}, Placeholders("Good {time}, {name}! {name}?"[5:]+"{time}"))
	assert.Empty(t, Placeholders("none here"))
}

type stubSource struct {
	err error
}

func (s stubSource) Type() SourceType { return SourceRemoteAPI }

func (s stubSource) Fetch(context.Context, string, FetchRequest) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "ok", nil
}

func (s stubSource) Exists(ctx context.Context, id string, req FetchRequest) (bool, error) {
	return ExistsByFetch(ctx, s, id, req)
}

func TestExistsByFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ok, err := stubSource{}.Exists(ctx, "a", FetchRequest{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = stubSource{err: NewPromptError(ErrPromptNotFound, "a", SourceRemoteAPI, nil)}.Exists(ctx, "a", FetchRequest{})
	require.NoError(t, err)
	assert.False(t, ok)

	boom := errors.New("boom")
	ok, err = stubSource{err: boom}.Exists(ctx, "a", FetchRequest{})
	require.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestFetchRequest_Param(t *testing.T) {
	t.Parallel()
	req := FetchRequest{Params: map[string]any{KeyPath: "a.txt", "n": 3}}
	assert.Equal(t, "a.txt", req.Param(KeyPath))
	assert.Empty(t, req.Param("n"))
	assert.Empty(t, FetchRequest{}.Param(KeyPath))
}

func TestCapabilities_HasSource(t *testing.T) {
	t.Parallel()
	c := Capabilities{Sources: []SourceType{SourceFilesystem}}
	assert.True(t, c.HasSource(SourceFilesystem))
	assert.False(t, c.HasSource(SourceRemoteAPI))
}
