package vinculum

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogger struct{}
type fakeRepository struct{}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	d := &Descriptor{Key: "Logger", ComponentType: reflect.TypeOf(fakeLogger{}), Kind: ProviderInstance, Provider: fakeLogger{}}

	stored, err := r.Register(d, false)
	require.NoError(t, err)
	assert.Equal(t, "Logger", stored.Key)

	got, err := r.Get("Logger", "")
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestRegistryDuplicateRejected(t *testing.T) {
	r := NewRegistry()
	d := &Descriptor{Key: "Logger"}
	_, err := r.Register(d, false)
	require.NoError(t, err)

	_, err = r.Register(d, false)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAlreadyRegistered))
}

func TestRegistryOverrideReplaces(t *testing.T) {
	r := NewRegistry()
	first := &Descriptor{Key: "Logger", Lifetime: Singleton}
	_, err := r.Register(first, false)
	require.NoError(t, err)

	second := &Descriptor{Key: "Logger", Lifetime: Transient}
	stored, err := r.Override(second)
	require.NoError(t, err)
	assert.Equal(t, Transient, stored.Lifetime)

	byLife := r.FindByLifetime(Singleton)
	assert.Empty(t, byLife)
	byLife = r.FindByLifetime(Transient)
	require.Len(t, byLife, 1)
}

func TestRegistryNamedKeysAreDistinct(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(&Descriptor{Key: "Repository", Name: "primary"}, false)
	require.NoError(t, err)
	_, err = r.Register(&Descriptor{Key: "Repository", Name: "replica"}, false)
	require.NoError(t, err)

	assert.True(t, r.Has("Repository", "primary"))
	assert.True(t, r.Has("Repository", "replica"))
	assert.False(t, r.Has("Repository", ""))
}

func TestRegistryGetNotRegistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("Missing", "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotRegistered))
}

func TestRegistryConditionHidesDescriptor(t *testing.T) {
	r := NewRegistry()
	enabled := false
	_, err := r.Register(&Descriptor{Key: "Feature", Condition: func() bool { return enabled }}, false)
	require.NoError(t, err)

	assert.False(t, r.Has("Feature", ""))
	enabled = true
	assert.True(t, r.Has("Feature", ""))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(&Descriptor{Key: "Temp", ComponentType: reflect.TypeOf(fakeRepository{})}, false)
	require.NoError(t, err)

	assert.True(t, r.Remove("Temp", ""))
	assert.False(t, r.Has("Temp", ""))
	assert.Empty(t, r.FindByType(reflect.TypeOf(fakeRepository{})))
	assert.False(t, r.Remove("Temp", ""))
}

func TestRegistryFindByTag(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(&Descriptor{Key: "A", Tags: newTagSet([]string{"core"})}, false)
	require.NoError(t, err)
	_, err = r.Register(&Descriptor{Key: "B", Tags: newTagSet([]string{"core"})}, false)
	require.NoError(t, err)
	_, err = r.Register(&Descriptor{Key: "C"}, false)
	require.NoError(t, err)

	found := r.FindByTag("core")
	require.Len(t, found, 2)
	assert.Equal(t, "A", found[0].Key)
	assert.Equal(t, "B", found[1].Key)
}

func TestRegistryAliasFallsBackWhenUnregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(&Descriptor{Key: "Concrete"}, false)
	require.NoError(t, err)
	r.Alias("Forward", "Concrete")

	got, err := r.Get("Forward", "")
	require.NoError(t, err)
	assert.Equal(t, "Concrete", got.Key)
}

func TestRegistryKeys(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register(&Descriptor{Key: "A"}, false)
	_, _ = r.Register(&Descriptor{Key: "B"}, false)
	assert.ElementsMatch(t, []string{"A", "B"}, r.Keys())
}

func TestRankSingleWinner(t *testing.T) {
	high := &Descriptor{Key: "High", Metadata: map[string]any{"priority": 10}}
	low := &Descriptor{Key: "Low", Metadata: map[string]any{"priority": 1}}
	winners := rank([]*Descriptor{low, high})
	require.Len(t, winners, 1)
	assert.Equal(t, "High", winners[0].Key)
}

func TestRankTieReturnsAll(t *testing.T) {
	a := &Descriptor{Key: "A"}
	b := &Descriptor{Key: "B"}
	winners := rank([]*Descriptor{a, b})
	assert.Len(t, winners, 2)
}
