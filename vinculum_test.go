package vinculum

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fixtures shared across the end-to-end scenarios ---

type Config struct {
	Env string
}

type Logger struct {
	Env string
}

type Repository struct {
	Logger *Logger
}

type Service struct {
	Repo   *Repository
	Logger *Logger
}

func TestAutoWireTwoLevelsDeep(t *testing.T) {
	c := New()
	_, err := Register[*Logger](c, Instance(&Logger{Env: "prod"}))
	require.NoError(t, err)
	_, err = Register[*Repository](c, Type[Repository]())
	require.NoError(t, err)
	_, err = Register[*Service](c, Type[Service]())
	require.NoError(t, err)

	svc, err := Resolve[*Service](context.Background(), c, nil)
	require.NoError(t, err)
	require.NotNil(t, svc.Repo)
	require.NotNil(t, svc.Repo.Logger)
	assert.Equal(t, "prod", svc.Repo.Logger.Env)
	assert.Same(t, svc.Logger, svc.Repo.Logger)
}

func TestSingletonsAreShared(t *testing.T) {
	c := New()
	_, err := Register[*Logger](c, Factory(func() *Logger { return &Logger{Env: "shared"} }), WithLifetime(Singleton))
	require.NoError(t, err)

	a, err := Resolve[*Logger](context.Background(), c, nil)
	require.NoError(t, err)
	b, err := Resolve[*Logger](context.Background(), c, nil)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestTransientsAreFresh(t *testing.T) {
	c := New()
	_, err := Register[*Logger](c, Factory(func() *Logger { return &Logger{} }), WithLifetime(Transient))
	require.NoError(t, err)

	a, err := Resolve[*Logger](context.Background(), c, nil)
	require.NoError(t, err)
	b, err := Resolve[*Logger](context.Background(), c, nil)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

type Session struct{ ID int }

func TestScopedLifetimeSharesWithinActivationOnly(t *testing.T) {
	c := New()
	var n int
	_, err := c.RegisterFactory(func() *Session { n++; return &Session{ID: n} }, Scoped, WithScopeName("request"))
	require.NoError(t, err)

	handle1, err := c.Scope(context.Background(), "request")
	require.NoError(t, err)
	a, err := c.Resolve(handle1.Context, "Session", "", nil)
	require.NoError(t, err)
	b, err := c.Resolve(handle1.Context, "Session", "", nil)
	require.NoError(t, err)
	assert.Same(t, a, b)
	require.NoError(t, handle1.Close(handle1.Context))

	handle2, err := c.Scope(context.Background(), "request")
	require.NoError(t, err)
	d, err := c.Resolve(handle2.Context, "Session", "", nil)
	require.NoError(t, err)
	assert.NotSame(t, a, d)
}

func TestScopeInactiveWithoutActivation(t *testing.T) {
	c := New()
	_, err := c.RegisterFactory(func() *Session { return &Session{} }, Scoped, WithScopeName("request"))
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "Session", "", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindScopeInactive))
}

func TestScopeReentryRejected(t *testing.T) {
	c := New()
	handle, err := c.Scope(context.Background(), "request")
	require.NoError(t, err)

	_, err = c.Scope(handle.Context, "request")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindScopeReentry))
}

type cycleA struct{ B *cycleB }
type cycleB struct{ A *cycleA }

func TestCircularDependencyDetected(t *testing.T) {
	c := New()
	_, err := Register[*cycleA](c, Type[cycleA]())
	require.NoError(t, err)
	_, err = Register[*cycleB](c, Type[cycleB]())
	require.NoError(t, err)

	_, err = Resolve[*cycleA](context.Background(), c, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCircularDependency))
}

type Notifier interface{ Notify(string) }
type emailNotifier struct{}

func (emailNotifier) Notify(string) {}

type smsNotifier struct{}

func (smsNotifier) Notify(string) {}

type Alerter struct {
	N Notifier
}

func TestAmbiguousCapabilityInjection(t *testing.T) {
	c := New()
	ifaceType := reflect.TypeOf((*Notifier)(nil)).Elem()
	_, err := c.RegisterType(reflect.TypeOf(emailNotifier{}), Singleton, Implements(ifaceType))
	require.NoError(t, err)
	_, err = c.RegisterType(reflect.TypeOf(smsNotifier{}), Singleton, Implements(ifaceType))
	require.NoError(t, err)
	_, err = Register[*Alerter](c, Type[Alerter]())
	require.NoError(t, err)

	_, err = Resolve[*Alerter](context.Background(), c, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAmbiguousInjection))
}

type AsyncResource struct{ Label string }

func TestAsyncFactoryRejectedFromSyncResolve(t *testing.T) {
	c := New()
	_, err := c.RegisterFactoryAsync(func(ctx context.Context) *AsyncResource {
		return &AsyncResource{Label: "built"}
	}, Singleton)
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "AsyncResource", "", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAsyncInSyncContext))

	v, err := c.ResolveAsync(context.Background(), "AsyncResource", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "built", v.(*AsyncResource).Label)
}

func TestOverridePrecedenceOnRepeatedRegistration(t *testing.T) {
	c := New()
	_, err := Register[*Logger](c, Instance(&Logger{Env: "a"}))
	require.NoError(t, err)

	_, err = Register[*Logger](c, Instance(&Logger{Env: "b"}))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAlreadyRegistered))

	_, err = Register[*Logger](c, Instance(&Logger{Env: "b"}), AllowOverride())
	require.NoError(t, err)

	got, err := Resolve[*Logger](context.Background(), c, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Env)
}

type disposableThing struct{ disposed *bool }

func (d *disposableThing) Dispose() error { *d.disposed = true; return nil }

func TestContainerCloseDisposesSingletons(t *testing.T) {
	c := New()
	disposed := false
	_, err := c.RegisterFactory(func() *disposableThing { return &disposableThing{disposed: &disposed} }, Singleton)
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "disposableThing", "", nil)
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, disposed)
}

func TestConditionalRegistrationHonored(t *testing.T) {
	c := New()
	enabled := false
	_, err := c.RegisterInstance(&Logger{Env: "feature"}, WithCondition(func() bool { return enabled }))
	require.NoError(t, err)

	assert.False(t, c.Has("Logger", ""))
	enabled = true
	assert.True(t, c.Has("Logger", ""))
}

func TestCallResolvesParametersAndAcceptsPositionalOverride(t *testing.T) {
	c := New()
	_, err := Register[*Logger](c, Instance(&Logger{Env: "prod"}))
	require.NoError(t, err)

	result, err := c.Call(context.Background(), func(log *Logger, extra string) string {
		return log.Env + ":" + extra
	}, CallOpts{Positional: []any{nil, "tag"}})
	require.NoError(t, err)
	assert.Equal(t, "prod:tag", result)
}

func TestCallAcceptsNamedOverride(t *testing.T) {
	c := New()

	result, err := c.Call(context.Background(), func(extra string) string {
		return "got:" + extra
	}, CallOpts{Overrides: map[string]any{"string": "override"}})
	require.NoError(t, err)
	assert.Equal(t, "got:override", result)
}

func TestFactoryProviderErrorPropagates(t *testing.T) {
	c := New()
	_, err := c.RegisterFactory(func() (*Logger, error) {
		return nil, errors.New("construction failed")
	}, Transient)
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "Logger", "", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProviderFailed))
}

func TestChildContainerHasIndependentSingletons(t *testing.T) {
	c := New()
	var n int
	_, err := c.RegisterFactory(func() *Logger { n++; return &Logger{Env: "root"} }, Singleton)
	require.NoError(t, err)

	parentInst, err := c.Resolve(context.Background(), "Logger", "", nil)
	require.NoError(t, err)

	child := c.CreateChild()
	childInst, err := child.Resolve(context.Background(), "Logger", "", nil)
	require.NoError(t, err)

	assert.NotSame(t, parentInst, childInst)
	assert.Equal(t, 2, n)
}

// --- override injection (spec §4.4 rule 6, §8 "Override precedence") ---

type Tunable struct {
	Mode string
}

func TestOverridePrecedenceOnStructField(t *testing.T) {
	c := New()
	_, err := Register[*Tunable](c, Type[Tunable]())
	require.NoError(t, err)

	// Mode is a primitive, which the analyzer always SKIPs; without an
	// override it is left at its zero value.
	plain, err := c.Resolve(context.Background(), "Tunable", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "", plain.(*Tunable).Mode)

	overridden, err := c.Resolve(context.Background(), "Tunable", "", map[string]any{"Mode": "debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", overridden.(*Tunable).Mode)

	// The override only ever applies to this one resolution.
	again, err := c.Resolve(context.Background(), "Tunable", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "", again.(*Tunable).Mode)
}

func TestOverridePrecedenceOnFactoryParameter(t *testing.T) {
	c := New()
	_, err := c.RegisterFactory(func(mode string) string { return "mode=" + mode }, Transient)
	require.NoError(t, err)

	got, err := Resolve[string](context.Background(), c, map[string]any{"string": "verbose"})
	require.NoError(t, err)
	assert.Equal(t, "mode=verbose", got)
}

// --- lazy descriptors (spec §4.4 "Lazy components") ---

func TestLazyDescriptorDefersConstructionUntilInvoked(t *testing.T) {
	c := New()
	var n int
	_, err := c.RegisterFactory(func() *Logger { n++; return &Logger{Env: "lazy"} }, Transient, WithLazy())
	require.NoError(t, err)

	v, err := c.Resolve(context.Background(), "Logger", "", nil)
	require.NoError(t, err)
	thunk, ok := v.(Thunk)
	require.True(t, ok)
	assert.Equal(t, 0, n, "registering and resolving a lazy descriptor must not construct it")

	a, err := thunk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := thunk(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b, "a Thunk is idempotent: it never reruns the provider")
	assert.Equal(t, 1, n)
}
