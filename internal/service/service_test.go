package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelcore/internal/catalog"
	"modelcore/internal/dispatcher"
	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

type echoBackend struct{}

func (echoBackend) AwaitReady(context.Context) error { return nil }
func (echoBackend) Close() error                     { return nil }
func (echoBackend) Infer(_ context.Context, in any) (any, error) {
	if s, ok := in.(string); ok && s == "fail" {
		return nil, errors.New("backend exploded")
	}
	return in, nil
}

func newCore(t *testing.T, ceiling int64, descs ...types.ModelDescriptor) (*Core, *registry.Bus) {
	t.Helper()
	launch := registry.LauncherFunc(func(context.Context, types.ModelDescriptor, func(float64)) (registry.Backend, error) {
		return echoBackend{}, nil
	})
	launchers := map[types.Category]registry.Launcher{}
	for _, c := range types.Categories {
		launchers[c] = launch
	}
	bus := registry.NewBus()
	reg := registry.New(registry.Config{
		CeilingBytes: ceiling,
		Launchers:    launchers,
		Estimate:     func(types.ModelDescriptor) int64 { return 10 },
		Publisher:    bus,
		ReadyTimeout: time.Second,
	})
	disp := dispatcher.New(reg, dispatcher.Config{Workers: 2})
	c := New(Options{Registry: reg, Dispatcher: disp, Catalog: catalog.New(descs), Bus: bus})
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, bus
}

func TestLoad_ByIDFromCatalog(t *testing.T) {
	c, _ := newCore(t, 100, types.ModelDescriptor{ID: "whisper-base", Category: types.CategoryTranscription})

	resp, err := c.Load(context.Background(), types.ModelDescriptor{ID: "whisper-base"})
	require.NoError(t, err)
	assert.Equal(t, "whisper-base", resp.ModelID)
	assert.False(t, resp.Reused)
	assert.NotEmpty(t, resp.SessionID)

	again, err := c.Load(context.Background(), types.ModelDescriptor{ID: "whisper-base"})
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, resp.SessionID, again.SessionID)

	st, ok := c.Model("whisper-base")
	require.True(t, ok)
	assert.Equal(t, types.CategoryTranscription, st.Category)
	assert.Len(t, c.ListModels(), 1)
}

func TestLoad_Errors(t *testing.T) {
	c, _ := newCore(t, 100)

	_, err := c.Load(context.Background(), types.ModelDescriptor{})
	var he interface{ StatusCode() int }
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.StatusCode())

	_, err = c.Load(context.Background(), types.ModelDescriptor{ID: "nope"})
	assert.True(t, IsUnknownModel(err))

	_, err = c.Load(context.Background(), types.ModelDescriptor{ID: "x", Category: "video"})
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.StatusCode())

	_, err = c.Load(context.Background(), types.ModelDescriptor{ID: "big", Category: types.CategoryLanguage})
	require.NoError(t, err)
}

func TestLoad_InsufficientResources(t *testing.T) {
	c, _ := newCore(t, 5)
	_, err := c.Load(context.Background(), types.ModelDescriptor{ID: "m", Category: types.CategoryLanguage})
	assert.True(t, registry.IsInsufficientResources(err))
	assert.True(t, registry.IsTemporary(err))
}

func TestKnown(t *testing.T) {
	c, _ := newCore(t, 100, types.ModelDescriptor{ID: "cat", Category: types.CategoryLanguage})
	assert.True(t, c.Known("cat"))
	assert.False(t, c.Known("adhoc"))
	_, err := c.Load(context.Background(), types.ModelDescriptor{ID: "adhoc", Category: types.CategoryLanguage})
	require.NoError(t, err)
	assert.True(t, c.Known("adhoc"))
	assert.Len(t, c.Catalog(), 1)
}

func TestInferAndStats(t *testing.T) {
	c, _ := newCore(t, 100)
	_, err := c.Load(context.Background(), types.ModelDescriptor{ID: "m", Category: types.CategoryLanguage})
	require.NoError(t, err)

	out, err := c.Infer(context.Background(), dispatcher.Request{ModelID: "m", Input: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = c.Infer(context.Background(), dispatcher.Request{ModelID: "m", Input: "fail"})
	assert.True(t, dispatcher.IsExecutionFailure(err))

	_, err = c.Infer(context.Background(), dispatcher.Request{ModelID: "ghost", Input: "x"})
	assert.True(t, registry.IsModelNotLoaded(err))

	res := c.InferBatch(context.Background(), []dispatcher.Request{
		{ModelID: "m", Input: "a"},
		{ModelID: "ghost", Input: "b"},
	})
	assert.Equal(t, "a", res.Results[0])
	assert.Contains(t, res.Errors, 1)

	st := c.Stats()
	assert.Equal(t, 1, st.Registry.LoadedCount)
	assert.GreaterOrEqual(t, st.Pipeline.Total, uint64(3))
	assert.GreaterOrEqual(t, st.Pipeline.Failed, uint64(1))
}

func TestUnload(t *testing.T) {
	c, _ := newCore(t, 100)
	_, err := c.Load(context.Background(), types.ModelDescriptor{ID: "m", Category: types.CategoryLanguage})
	require.NoError(t, err)
	assert.True(t, c.Unload(context.Background(), "m", false))
	assert.False(t, c.Unload(context.Background(), "m", false))
	_, ok := c.Model("m")
	assert.False(t, ok)
}

func TestStart_PreloadsAndSubscribes(t *testing.T) {
	c, _ := newCore(t, 100,
		types.ModelDescriptor{ID: "pinned", Category: types.CategoryLanguage, Pinned: true},
		types.ModelDescriptor{ID: "listed", Category: types.CategoryTextEmbedding},
		types.ModelDescriptor{ID: "other", Category: types.CategoryTextEmbedding},
	)
	events, cancel := c.Subscribe(32)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	c.Start(ctx, []string{"listed"})

	require.Eventually(t, c.Ready, 2*time.Second, 10*time.Millisecond)
	ids := map[string]bool{}
	for _, m := range c.ListModels() {
		ids[m.ModelID] = true
	}
	assert.Equal(t, map[string]bool{"pinned": true, "listed": true}, ids)

	select {
	case ev := <-events:
		assert.NotEmpty(t, ev.Name)
	case <-time.After(time.Second):
		t.Fatal("no registry event delivered")
	}
}
