package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"beeftrace/pkg/platform/sentinel"
)

// fakeRemote serves canned payloads and counts calls so tests can tell which
// layer answered.
type fakeRemote struct {
	entities map[string]json.RawMessage
	calls    int
	fail     error
}

func (f *fakeRemote) Get(ctx context.Context, entityType, id string) (json.RawMessage, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	payload, ok := f.entities[entityType+"/"+id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return payload, nil
}

func (f *fakeRemote) List(ctx context.Context, entityType string) (map[string]json.RawMessage, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	out := make(map[string]json.RawMessage)
	for key, payload := range f.entities {
		if len(key) > len(entityType) && key[:len(entityType)] == entityType {
			out[key[len(entityType)+1:]] = payload
		}
	}
	return out, nil
}

func (f *fakeRemote) ListByOwner(ctx context.Context, entityType, ownerAddr string) (map[string]json.RawMessage, error) {
	return f.List(ctx, entityType)
}

func (f *fakeRemote) BulkUpsert(ctx context.Context, entityType string, data map[string]json.RawMessage) error {
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	if f.entities == nil {
		f.entities = make(map[string]json.RawMessage)
	}
	for id, payload := range data {
		f.entities[entityType+"/"+id] = payload
	}
	return nil
}

func (f *fakeRemote) Health(ctx context.Context) error {
	f.calls++
	return f.fail
}

type fakeClock struct{ at time.Time }

func (c *fakeClock) now() time.Time          { return c.at }
func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestStore(remote Remote, clock *fakeClock) *Store {
	return NewStore(remote, time.Minute, 30*time.Second, nil, WithStoreClock(clock.now))
}

func TestStoreServesLocalWithinTTL(t *testing.T) {
	remote := &fakeRemote{entities: map[string]json.RawMessage{
		"animals/1": json.RawMessage(`{"id":"1"}`),
	}}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	store := newTestStore(remote, clock)

	_, err := store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)
	_, err = store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)
	require.Equal(t, 1, remote.calls)
}

func TestStoreRefreshesAfterTTL(t *testing.T) {
	remote := &fakeRemote{entities: map[string]json.RawMessage{
		"animals/1": json.RawMessage(`{"id":"1"}`),
	}}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	store := newTestStore(remote, clock)

	_, err := store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)

	clock.advance(61 * time.Second)
	_, err = store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)
	require.Equal(t, 2, remote.calls)
}

func TestStoreServerFaultOpensCooldown(t *testing.T) {
	remote := &fakeRemote{fail: &errServerFault{status: 500}}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	store := newTestStore(remote, clock)

	_, err := store.Get(context.Background(), TypeAnimals, "1")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	require.False(t, store.Available())

	// In cooldown the remote is never touched.
	_, err = store.Get(context.Background(), TypeAnimals, "2")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	require.Equal(t, 1, remote.calls)
}

func TestStoreCooldownServesFreshLocalEntries(t *testing.T) {
	remote := &fakeRemote{entities: map[string]json.RawMessage{
		"animals/1": json.RawMessage(`{"id":"1"}`),
	}}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	store := newTestStore(remote, clock)

	_, err := store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)

	remote.fail = &errServerFault{status: 500}
	_, err = store.Get(context.Background(), TypeAnimals, "2")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)

	// The earlier entry is still fresh and still served.
	payload, err := store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1"}`, string(payload))
}

func TestStoreHealthCheckEndsCooldown(t *testing.T) {
	remote := &fakeRemote{fail: &errServerFault{status: 500}}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	store := newTestStore(remote, clock)

	_, err := store.Get(context.Background(), TypeAnimals, "1")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)

	remote.fail = nil
	remote.entities = map[string]json.RawMessage{"animals/1": json.RawMessage(`{"id":"1"}`)}

	// Cooldown has not elapsed, but a successful probe closes it early.
	require.NoError(t, store.HealthCheck(context.Background()))
	require.True(t, store.Available())

	_, err = store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)
}

func TestStoreBulkUpsertClearsLocalLayer(t *testing.T) {
	remote := &fakeRemote{entities: map[string]json.RawMessage{
		"animals/1": json.RawMessage(`{"id":"1","state":0}`),
	}}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	store := newTestStore(remote, clock)

	_, err := store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)
	require.Equal(t, 1, store.local.len())

	err = store.BulkUpsert(context.Background(), TypeAnimals, map[string]json.RawMessage{
		"1": json.RawMessage(`{"id":"1","state":1}`),
	})
	require.NoError(t, err)
	require.Zero(t, store.local.len())

	payload, err := store.Get(context.Background(), TypeAnimals, "1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1","state":1}`, string(payload))
}

func TestStoreGetManySkipsMissing(t *testing.T) {
	remote := &fakeRemote{entities: map[string]json.RawMessage{
		"animals/1": json.RawMessage(`{"id":"1"}`),
		"animals/3": json.RawMessage(`{"id":"3"}`),
	}}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	store := newTestStore(remote, clock)

	got, err := store.GetMany(context.Background(), TypeAnimals, []string{"1", "2", "3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Contains(t, got, "1")
	require.Contains(t, got, "3")
}

func TestStoreGetAnimalDecodes(t *testing.T) {
	remote := &fakeRemote{entities: map[string]json.RawMessage{
		"animals/7": json.RawMessage(`{"id":"7","weight_grams":"250000","state":1,"owner_addr":"0xabc"}`),
	}}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	store := newTestStore(remote, clock)

	a, err := store.GetAnimal(context.Background(), 7)
	require.NoError(t, err)
	require.EqualValues(t, 7, a.ID)
	require.EqualValues(t, 250000, a.WeightGrams)
	require.Equal(t, "0xabc", a.OwnerAddr)
}
