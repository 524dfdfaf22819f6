package report

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/query"
	"github.com/tabletalk/tabletalk/internal/result"
)

type fakeClient struct {
	reply string
	err   error
	got   llm.CompletionRequest
}

func (f *fakeClient) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.got = req
	return f.reply, f.err
}

func TestGenerateUsesCollaborator(t *testing.T) {
	client := &fakeClient{reply: " There are 42 patients. "}
	gen := NewGenerator(client, Options{Model: "m", Temperature: 0.3}, nil)

	got := gen.Generate(context.Background(), "how many patients are there?", result.Normalize(query.ScalarOutcome{Value: int64(42)}))

	assert.Equal(t, "There are 42 patients.", got)
	assert.Equal(t, 300, client.got.MaxTokens)
	assert.InDelta(t, 0.3, client.got.Temperature, 1e-9)
	require.Len(t, client.got.Messages, 2)
	assert.Contains(t, client.got.Messages[1].Content, `"value": 42`)
	assert.Contains(t, client.got.Messages[1].Content, "under 200 words")
}

func TestGenerateFallsBack(t *testing.T) {
	rows := [][]any{{1.0}, {2.0}, {3.0}}
	table := result.Normalize(query.TableOutcome{Columns: []string{"x"}, Rows: rows})

	failing := NewGenerator(&fakeClient{err: errors.New("quota")}, Options{}, nil)
	assert.Equal(t, "Analysis completed. Found 3 results.", failing.Generate(context.Background(), "q", table))

	empty := NewGenerator(&fakeClient{reply: "  "}, Options{}, nil)
	assert.Equal(t, "Analysis completed. Found 3 results.", empty.Generate(context.Background(), "q", table))

	none := NewGenerator(nil, Options{}, nil)
	scalar := result.Normalize(query.ScalarOutcome{Value: int64(1)})
	assert.Equal(t, "Analysis completed. Result type: scalar.", none.Generate(context.Background(), "q", scalar))
}

func TestFallback(t *testing.T) {
	assert.Equal(t, "Analysis completed. Found unknown number of results.", Fallback(result.Envelope{Kind: result.KindTable}))
	assert.Equal(t, "Analysis completed. Found unknown number of results.", Fallback(result.Envelope{}))
	assert.Equal(t, "Analysis completed. Result type: series.", Fallback(result.Envelope{Kind: result.KindSeries}))
}
