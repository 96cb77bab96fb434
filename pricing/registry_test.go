package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubClient struct{ cfg ClientConfig }

func (s *stubClient) PriceLookup(ctx context.Context, stationID string) (*StationPrices, error) {
	return nil, ErrMissingToken
}

func (s *stubClient) LocationSearch(ctx context.Context, query SearchQuery) (*SearchResults, error) {
	return &SearchResults{}, nil
}

func (s *stubClient) PriceLookupGPS(ctx context.Context, lat, lon float64, limit int) (*AreaResults, error) {
	return &AreaResults{}, nil
}

func (s *stubClient) PriceLookupZIP(ctx context.Context, zip string, limit int) (*AreaResults, error) {
	return &AreaResults{}, nil
}

func (s *stubClient) ClearCache(ctx context.Context) error { return nil }

func TestRegisterAndNew(t *testing.T) {
	require.NoError(t, Register("stub", func(cfg ClientConfig) (Client, error) {
		return &stubClient{cfg: cfg}, nil
	}))

	client, err := New("stub", ClientConfig{SolverURL: "http://localhost:8191"})
	require.NoError(t, err)
	stub, ok := client.(*stubClient)
	require.True(t, ok)
	require.Equal(t, "http://localhost:8191", stub.cfg.SolverURL)

	require.Error(t, Register("stub", func(ClientConfig) (Client, error) { return nil, nil }), "duplicate driver")
	require.Error(t, Register("", func(ClientConfig) (Client, error) { return nil, nil }))
	require.Error(t, Register("other", nil))

	_, err = New("unknown", ClientConfig{})
	require.Error(t, err)

	require.Contains(t, Drivers(), "stub")
}

func TestIsRecognized(t *testing.T) {
	require.True(t, IsRecognized(&APIError{Messages: []string{"boom"}}))
	require.True(t, IsRecognized(&ParseError{Err: errors.New("bad json")}))
	require.True(t, IsRecognized(ErrMissingToken))
	require.False(t, IsRecognized(errors.New("connection reset")))
	require.False(t, IsRecognized(nil))
}

func TestCloneIsDeep(t *testing.T) {
	price := 2.95
	lat := 33.87
	data := &StationPrices{
		StationID: "208656",
		Latitude:  &lat,
		Fuels: map[string]*FuelPrice{
			"regular_gas": {Credit: "Buddy_5bbkqrb1", Price: &price},
			"diesel":      nil,
		},
	}

	clone := data.Clone()
	*clone.Latitude = 0
	*clone.Fuels["regular_gas"].Price = 9.99

	require.Equal(t, 33.87, *data.Latitude)
	require.Equal(t, 2.95, *data.Fuels["regular_gas"].Price)
	require.Nil(t, clone.Fuels["diesel"])

	var nilData *StationPrices
	require.Nil(t, nilData.Clone())
}
