package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/civicload/errors"
)

func TestDefaultCatalog(t *testing.T) {
	store, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"bike_share_ridership",
		"ttc_bus_delays",
		"ttc_streetcar_delays",
		"ttc_subway_delays",
		"weather_daily",
	}, store.Datasets())

	subway, err := store.Contract("ttc_subway_delays")
	require.NoError(t, err)
	assert.Equal(t, 100, subway.MinRowCount)
	assert.Equal(t, "1.0.0", subway.Version.String())
	assert.Contains(t, subway.Required(), "Station")

	date, ok := subway.Column("date")
	require.True(t, ok)
	assert.Equal(t, TypeDate, date.Type)
	assert.False(t, date.Nullable)

	bike, err := store.Contract("bike_share_ridership")
	require.NoError(t, err)
	dur, ok := bike.Column("Trip  Duration")
	require.True(t, ok, "double space in the source header is significant")
	assert.Equal(t, TypeInteger, dur.Type)
}

func TestContractNotFound(t *testing.T) {
	store, err := Default()
	require.NoError(t, err)

	_, err = store.Contract("ferry_tickets")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestContractCopiesAreIndependent(t *testing.T) {
	store, err := Default()
	require.NoError(t, err)

	first, err := store.Contract("weather_daily")
	require.NoError(t, err)
	first.Columns[0].Name = "mutated"

	second, err := store.Contract("weather_daily")
	require.NoError(t, err)
	assert.Equal(t, "Date/Time", second.Columns[0].Name)
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "bad type",
			doc: `[[contract]]
dataset = "x"
version = "1.0.0"
column = [{ name = "a", type = "BLOB" }]`,
			want: "unknown column type",
		},
		{
			name: "bad version",
			doc: `[[contract]]
dataset = "x"
version = "one"
column = [{ name = "a", type = "STRING" }]`,
			want: "invalid version",
		},
		{
			name: "duplicate column",
			doc: `[[contract]]
dataset = "x"
version = "1.0.0"
column = [{ name = "a", type = "STRING" }, { name = "A", type = "DATE" }]`,
			want: "twice",
		},
		{
			name: "duplicate dataset",
			doc: `[[contract]]
dataset = "x"
version = "1.0.0"
column = [{ name = "a", type = "STRING" }]
[[contract]]
dataset = "x"
version = "1.0.1"
column = [{ name = "a", type = "STRING" }]`,
			want: "declared twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseColumnType(t *testing.T) {
	typ, err := ParseColumnType(" decimal ")
	require.NoError(t, err)
	assert.Equal(t, TypeDecimal, typ)
}
