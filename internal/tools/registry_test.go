package tools

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

func TestRegistry_RegisterThenLookupReturnsDescriptorUnchanged(t *testing.T) {
	r := NewRegistry()
	desc := schema.ToolDescriptor{
		Name:        "currency_converter",
		Description: "Convert between currencies",
		Params: []schema.Param{
			{Name: "amount", Type: schema.TypeNumber, Required: true},
			{Name: "from", Type: schema.TypeString, Default: "USD"},
		},
		Kind:           schema.KindDynamic,
		SourceLocation: "/tmp/tools/currency_converter",
		CreatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	require.NoError(t, r.Register(desc, &stubTool{name: desc.Name}))

	got, err := r.Lookup("Currency_Converter")
	require.NoError(t, err)
	if diff := cmp.Diff(desc, got.Descriptor); diff != "" {
		t.Fatalf("descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_LookupDoesNotAliasState(t *testing.T) {
	r := NewRegistry()
	desc := schema.ToolDescriptor{Name: "t", Params: []schema.Param{{Name: "a", Type: schema.TypeString}}}
	require.NoError(t, r.Register(desc, &stubTool{name: "t"}))

	got, err := r.Lookup("t")
	require.NoError(t, err)
	got.Descriptor.Params[0].Name = "mutated"

	again, err := r.Lookup("t")
	require.NoError(t, err)
	require.Equal(t, "a", again.Descriptor.Params[0].Name)
}

func TestRegistry_UnregisterTwice(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(schema.ToolDescriptor{Name: "echo"}, &stubTool{name: "echo"}))

	_, err := r.Unregister("echo")
	require.NoError(t, err)

	_, err = r.Lookup("echo")
	require.ErrorIs(t, err, ErrToolNotFound)

	_, err = r.Unregister("echo")
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_DuplicateNameConflicts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(schema.ToolDescriptor{Name: "echo"}, &stubTool{name: "echo"}))
	err := r.Register(schema.ToolDescriptor{Name: " ECHO "}, &stubTool{name: "echo"})
	require.ErrorIs(t, err, ErrRegistryConflict)
}

func TestRegistry_ConcurrentSameNameRegistration(t *testing.T) {
	r := NewRegistry()
	const workers = 32

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := r.Register(schema.ToolDescriptor{Name: "weather"}, &stubTool{name: "weather"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if errors.Is(err, ErrRegistryConflict) {
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, conflicts)
}

func TestRegistry_ListIsRestartableSnapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(schema.ToolDescriptor{Name: "b"}, &stubTool{name: "b"}))
	require.NoError(t, r.Register(schema.ToolDescriptor{Name: "a"}, &stubTool{name: "a"}))

	seq := r.List()
	require.NoError(t, r.Register(schema.ToolDescriptor{Name: "c"}, &stubTool{name: "c"}))

	collect := func() []string {
		var names []string
		for d := range seq {
			names = append(names, d.Name)
		}
		return names
	}
	require.Equal(t, []string{"a", "b"}, collect())
	require.Equal(t, []string{"a", "b"}, collect())
	require.Equal(t, 3, r.Len())
}

func TestRegistryBuilder_SkipsBlocked(t *testing.T) {
	keep := &stubTool{name: "keep"}
	drop := &stubTool{name: "drop"}
	dropFP := Fingerprint("drop", nil)

	r, err := NewRegistryBuilder().
		WithTool(keep).
		WithTool(drop).
		WithBlocked(func(fp schema.Fingerprint) bool { return fp == dropFP }).
		Build()
	require.NoError(t, err)

	require.True(t, r.Contains("keep"))
	require.False(t, r.Contains("drop"))

	e, err := r.Lookup("keep")
	require.NoError(t, err)
	require.Equal(t, schema.KindBuiltin, e.Descriptor.Kind)
}

func TestRegistryBuilder_DuplicateIsError(t *testing.T) {
	_, err := NewRegistryBuilder().
		WithTool(&stubTool{name: "x"}).
		WithTool(&stubTool{name: "x"}).
		Build()
	require.ErrorIs(t, err, ErrRegistryConflict)
}
