package mock

import (
	"context"
	"sync"
	"testing"

	"github.com/poiesic/embedsearch/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Determinism(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "great movie")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "great movie")
	require.NoError(t, err)
	c, err := m.EmbedText(ctx, "terrible movie")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, ai.DefaultDimensions)
}

func TestMockEmbedder_UnitLength(t *testing.T) {
	v := GenerateDeterministicVector("anything", 384)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 0.001)
}

func TestMockEmbedder_BlankText(t *testing.T) {
	m := NewMockEmbedder()
	_, err := m.EmbedText(context.Background(), " \t ")
	assert.ErrorIs(t, err, ai.ErrEmptyText)

	_, err = m.EmbedTexts(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, ai.ErrEmptyText)
}

func TestMockEmbedder_ConcurrentUse(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.EmbedText(ctx, "shared query")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, m.CallCount())
	assert.Len(t, m.Texts(), 16)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	assert.Empty(t, m.Texts())
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	assert.Equal(t, DefaultModel, p.Model())
	assert.NotNil(t, p.Embedder())

	mp := p.(*MockProvider)
	assert.NotNil(t, mp.GetMockEmbedder())
	require.NoError(t, p.Close())
	assert.True(t, mp.Closed())
}
