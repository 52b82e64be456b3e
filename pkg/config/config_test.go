package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-loom/pkg/config"
	"github.com/askiada/go-loom/pkg/pipeline"
	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/source"
	"github.com/askiada/go-loom/pkg/transform"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	doc, err := config.Load("testdata/pipeline.yaml")
	require.NoError(t, err)

	spec := doc.Spec()
	assert.Equal(t, "teams", spec.Name)
	assert.Equal(t, model.Settings{
		Mode:        model.ParallelMode,
		Workers:     2,
		DefaultTTL:  5 * time.Minute,
		RunTimeout:  time.Minute,
		EventsTopic: "loom.teams",
	}, spec.Settings)

	require.Len(t, spec.Steps, 3)
	assert.Equal(t, model.StepInfo{
		Name:      "fetch",
		Kind:      model.SourceStepKind,
		Operation: "users",
		Cache:     model.CachePolicy{Enabled: true, TTL: 2 * time.Minute},
	}, spec.Steps[0])
	assert.Equal(t, "filter", spec.Steps[1].Operation)
	assert.Equal(t, []string{"fetch"}, spec.Steps[1].DependsOn)
	assert.Equal(t, map[string]any{"field": "active", "equals": true}, spec.Steps[1].Params)
	assert.Equal(t, model.AggregateStepKind, spec.Steps[2].Kind)
	assert.Equal(t, 5*time.Second, spec.Steps[2].Timeout)
	assert.InDelta(t, 2, spec.Steps[2].Priority, 0)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestRunDocument(t *testing.T) {
	t.Parallel()

	doc, err := config.Load("testdata/pipeline.yaml")
	require.NoError(t, err)

	sources, closer, err := doc.Adapters(nil)
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, []string{"api", "users"}, sources.Names())

	store, err := doc.OpenShuttle(nil)
	require.NoError(t, err)
	defer store.Close()

	p, err := pipeline.Load(doc.Spec(), pipeline.NewRegistry(sources, transform.Builtins()))
	require.NoError(t, err)

	l, err := pipeline.New(store)
	require.NoError(t, err)

	res, err := l.Run(context.Background(), p, nil)
	require.NoError(t, err)

	ds, ok := res.Output("total")
	require.True(t, ok)
	assert.Equal(t, []model.Row{{"count": 2}}, ds.Rows)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	const step = "steps:\n  - {name: a, kind: source, source: s}\n"

	tcs := map[string]struct {
		doc      string
		contains string
	}{
		"empty": {
			doc:      "",
			contains: "document is empty",
		},
		"no steps": {
			doc:      "name: p\n",
			contains: "steps: failed required",
		},
		"unknown field": {
			doc:      step + "colour: blue\n",
			contains: "colour",
		},
		"bad step name": {
			doc:      "steps:\n  - {name: 'a b', kind: source, source: s}\n",
			contains: "steps[0].name: failed stepname",
		},
		"bad dependency name": {
			doc:      "steps:\n  - {name: a, kind: transform, transform: t, depends_on: ['x/y']}\n",
			contains: "steps[0].depends_on[0]: failed stepname",
		},
		"unknown kind": {
			doc:      "steps:\n  - {name: a, kind: sink, source: s}\n",
			contains: "steps[0].kind: failed oneof",
		},
		"source step without source": {
			doc:      "steps:\n  - {name: a, kind: source}\n",
			contains: "steps[0].source: failed required_if",
		},
		"transform step without transform": {
			doc:      "steps:\n  - {name: a, kind: transform, depends_on: [b]}\n",
			contains: "steps[0].transform: failed required_unless",
		},
		"source step naming a transform": {
			doc:      "steps:\n  - {name: a, kind: source, source: s, transform: t}\n",
			contains: "steps[0].transform: failed excluded_if",
		},
		"unknown mode": {
			doc:      step + "mode: fast\n",
			contains: "mode: failed oneof",
		},
		"negative workers": {
			doc:      step + "workers: -1\n",
			contains: "workers: failed gte",
		},
		"bad duration": {
			doc:      step + "run_timeout: 10\n",
			contains: "missing unit",
		},
		"negative duration": {
			doc:      step + "default_ttl: -1m\n",
			contains: "default_ttl: failed gte",
		},
		"duplicate source": {
			doc:      step + "sources:\n  - {name: s, kind: static}\n  - {name: s, kind: static}\n",
			contains: "sources: failed unique",
		},
		"http source without url": {
			doc:      step + "sources:\n  - {name: s, kind: http}\n",
			contains: "sources[0].url: failed required_if",
		},
		"http source with bad url": {
			doc:      step + "sources:\n  - {name: s, kind: http, url: 'not a url'}\n",
			contains: "sources[0].url: failed url",
		},
		"kv source without path": {
			doc:      step + "sources:\n  - {name: s, kind: kv}\n",
			contains: "sources[0].path: failed required_if",
		},
		"badger cache without path": {
			doc:      step + "cache: {backend: badger}\n",
			contains: "cache.path: failed required_if",
		},
		"gc discard ratio above one": {
			doc:      step + "cache: {backend: badger, path: /tmp/x, gc_discard_ratio: 1.5}\n",
			contains: "cache.gc_discard_ratio: failed lt",
		},
		"negative gc discard ratio": {
			doc:      step + "cache: {backend: badger, path: /tmp/x, gc_discard_ratio: -0.1}\n",
			contains: "cache.gc_discard_ratio: failed gt",
		},
		"negative max retries": {
			doc:      step + "sources:\n  - {name: s, kind: http, url: 'http://x.test', max_retries: -1}\n",
			contains: "sources[0].max_retries: failed gte",
		},
		"negative retry interval": {
			doc:      step + "sources:\n  - {name: s, kind: http, url: 'http://x.test', retry_interval: -1s}\n",
			contains: "sources[0].retry_interval: failed gte",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse([]byte(tc.doc))
			require.ErrorIs(t, err, config.ErrInvalidDocument)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestOpenShuttle(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		cache config.Cache
	}{
		"default": {},
		"memory": {
			cache: config.Cache{Backend: "memory", SweepInterval: config.Duration(time.Minute)},
		},
		"badger": {
			cache: config.Cache{Backend: "badger"},
		},
		"badger with gc": {
			cache: config.Cache{Backend: "badger", GCInterval: config.Duration(time.Hour), GCDiscardRatio: 0.7},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if tc.cache.Backend == "badger" {
				tc.cache.Path = t.TempDir()
			}

			doc := &config.Document{Cache: tc.cache}
			store, err := doc.OpenShuttle(nil)
			require.NoError(t, err)

			ds := model.NewDataset(model.Row{"id": "a"})
			require.NoError(t, store.Put(context.Background(), "k", ds, time.Minute))

			got, ok, err := store.Get(context.Background(), "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, ds.Rows, got.Rows)
			assert.NoError(t, store.Close())
		})
	}
}

func TestKVSource(t *testing.T) {
	t.Parallel()

	doc := &config.Document{Sources: []config.Source{{Name: "events", Kind: "kv", Path: t.TempDir()}}}

	sources, closer, err := doc.Adapters(nil)
	require.NoError(t, err)

	adapter, ok := sources.Lookup("events")
	require.True(t, ok)

	ds, err := adapter.Retrieve(context.Background(), source.Request{Query: "missing/"})
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.NoError(t, closer.Close())
}
