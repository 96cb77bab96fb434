package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"gasbridge/config"
	"gasbridge/pricing"
)

type fakeClient struct {
	mu         sync.Mutex
	data       *pricing.StationPrices
	err        error
	lookups    int
	clearCalls int
	clearErr   error
}

func (f *fakeClient) PriceLookup(ctx context.Context, stationID string) (*pricing.StationPrices, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeClient) setReading(data *pricing.StationPrices, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	f.err = err
}

func (f *fakeClient) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func (f *fakeClient) LocationSearch(ctx context.Context, query pricing.SearchQuery) (*pricing.SearchResults, error) {
	return &pricing.SearchResults{}, nil
}

func (f *fakeClient) PriceLookupGPS(ctx context.Context, lat, lon float64, limit int) (*pricing.AreaResults, error) {
	return &pricing.AreaResults{}, nil
}

func (f *fakeClient) PriceLookupZIP(ctx context.Context, zip string, limit int) (*pricing.AreaResults, error) {
	return &pricing.AreaResults{}, nil
}

func (f *fakeClient) ClearCache(ctx context.Context) error {
	f.clearCalls++
	return f.clearErr
}

func testReading() *pricing.StationPrices {
	price := 2.95
	return &pricing.StationPrices{
		StationID:     "208656",
		UnitOfMeasure: pricing.UnitDollarsPerGallon,
		Currency:      "USD",
		Fuels: map[string]*pricing.FuelPrice{
			"regular_gas": {Credit: "Buddy_5bbkqrb1", Price: &price},
		},
	}
}

func testEntry() config.Entry {
	return config.Entry{ID: "abc123", StationID: "208656", Name: "Gas Station"}
}

func TestRefreshCachesReading(t *testing.T) {
	client := &fakeClient{data: testReading()}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)

	require.NoError(t, coord.Refresh(context.Background()))

	data, ok := coord.Snapshot()
	require.True(t, ok)
	require.NotNil(t, data)
	require.Equal(t, "208656", data.StationID)
	require.False(t, data.LastUpdated.IsZero())

	// Snapshots are deep copies; mutating one must not leak into the cache.
	*data.Fuels["regular_gas"].Price = 9.99
	fresh, _ := coord.Snapshot()
	require.Equal(t, 2.95, *fresh.Fuels["regular_gas"].Price)
}

func TestRefreshRecognizedErrorRetainsCache(t *testing.T) {
	client := &fakeClient{data: testReading()}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)
	require.NoError(t, coord.Refresh(context.Background()))

	client.err = &pricing.APIError{Messages: []string{"throttled"}}
	require.NoError(t, coord.Refresh(context.Background()))

	data, ok := coord.Snapshot()
	require.True(t, ok, "recognized error must not mark the entry failed")
	require.NotNil(t, data)
	require.Equal(t, 2.95, *data.Fuels["regular_gas"].Price)
}

func TestRefreshRecognizedErrorWithoutDataFailsFast(t *testing.T) {
	client := &fakeClient{err: pricing.ErrMissingToken}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)

	err = coord.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoData)

	data, ok := coord.Snapshot()
	require.False(t, ok)
	require.Nil(t, data)
}

func TestRefreshUnrecognizedErrorFails(t *testing.T) {
	client := &fakeClient{data: testReading()}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)
	require.NoError(t, coord.Refresh(context.Background()))

	client.err = errors.New("connection reset")
	err = coord.Refresh(context.Background())

	var updateErr *UpdateError
	require.ErrorAs(t, err, &updateErr)

	data, ok := coord.Snapshot()
	require.False(t, ok, "unrecognized error marks the entry failed")
	require.NotNil(t, data, "cached reading survives for the next retry")
}

func TestRefreshRecognizedErrorRestoresStaleAvailability(t *testing.T) {
	client := &fakeClient{data: testReading()}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)
	require.NoError(t, coord.Refresh(context.Background()))

	client.err = errors.New("connection reset")
	require.Error(t, coord.Refresh(context.Background()))
	_, ok := coord.Snapshot()
	require.False(t, ok)

	client.err = &pricing.APIError{Messages: []string{"throttled"}}
	require.NoError(t, coord.Refresh(context.Background()))

	data, ok := coord.Snapshot()
	require.True(t, ok, "cached reading keeps the entry available")
	require.NotNil(t, data)
}

func TestRefreshRecoversAfterFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("connection reset")}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)
	require.Error(t, coord.Refresh(context.Background()))

	client.err = nil
	client.data = testReading()
	require.NoError(t, coord.Refresh(context.Background()))

	_, ok := coord.Snapshot()
	require.True(t, ok)
}

func TestRunBootstrapRetriesUntilFirstReading(t *testing.T) {
	client := &fakeClient{err: errors.New("connection reset")}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()

	coord.RequestRefresh()
	require.Eventually(t, func() bool {
		return client.lookupCount() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	_, ok := coord.Snapshot()
	require.False(t, ok)

	client.setReading(testReading(), nil)
	coord.RequestRefresh()
	require.Eventually(t, func() bool {
		_, ok := coord.Snapshot()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestClearCache(t *testing.T) {
	client := &fakeClient{data: testReading()}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)

	require.NoError(t, coord.ClearCache(context.Background()))
	require.Equal(t, 1, client.clearCalls)

	client.clearErr = errors.New("boom")
	require.Error(t, coord.ClearCache(context.Background()))
}

func TestOnUpdateHook(t *testing.T) {
	client := &fakeClient{data: testReading()}
	coord, err := New(testEntry(), client, zerolog.Nop(), nil)
	require.NoError(t, err)

	calls := 0
	coord.SetOnUpdate(func() { calls++ })

	require.NoError(t, coord.Refresh(context.Background()))
	client.err = errors.New("connection reset")
	require.Error(t, coord.Refresh(context.Background()))
	require.Equal(t, 2, calls, "hook fires on success and failure alike")
}
