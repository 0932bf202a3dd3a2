package stage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/civicload/errors"
)

func TestLocalStagePutOpen(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStage(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "weather_daily_2024.csv")
	content := "Date/Time,Max Temp (°C)\n2024-01-01,1.5\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	key := Key("weather_daily", src)
	assert.Equal(t, "weather_daily/weather_daily_2024.csv", key)

	obj, err := st.Put(ctx, key, src)
	require.NoError(t, err)
	assert.True(t, obj.Uploaded)
	assert.Equal(t, int64(len(content)), obj.Size)
	assert.Len(t, obj.Hash, 64)

	rc, err := st.Open(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, string(got))

	again, err := st.Put(ctx, key, src)
	require.NoError(t, err)
	assert.False(t, again.Uploaded, "identical content is not uploaded twice")

	require.NoError(t, os.WriteFile(src, []byte(content+"2024-01-02,3.0\n"), 0o644))
	changed, err := st.Put(ctx, key, src)
	require.NoError(t, err)
	assert.True(t, changed.Uploaded)
	assert.NotEqual(t, obj.Hash, changed.Hash)
}

func TestLocalStageList(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStage(t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x\n"), 0o644))
		_, err := st.Put(ctx, Key("ttc_bus_delays", name), p)
		require.NoError(t, err)
	}

	keys, err := st.List(ctx, "ttc_bus_delays")
	require.NoError(t, err)
	assert.Equal(t, []string{"ttc_bus_delays/a.csv", "ttc_bus_delays/b.csv"}, keys)

	none, err := st.List(ctx, "weather_daily")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalStageOpenMissing(t *testing.T) {
	st, err := NewLocalStage(t.TempDir())
	require.NoError(t, err)

	_, err = st.Open(context.Background(), "nope/x.csv")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestFromConfig(t *testing.T) {
	st, err := FromConfig("local", t.TempDir(), MinioConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LocalStage{}, st)

	_, err = FromConfig("s3", "", MinioConfig{Endpoint: "https://s3.example.org"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	s3, err := FromConfig("s3", "", MinioConfig{
		Endpoint:        "https://s3.example.org",
		Bucket:          "civic-stage",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://civic-stage", s3.Describe())

	_, err = FromConfig("ftp", "", MinioConfig{})
	assert.Error(t, err)
}

func TestStoredHash(t *testing.T) {
	assert.Equal(t, "abc", storedHash(map[string]string{"Civicload-Sha256": "abc"}))
	assert.Equal(t, "abc", storedHash(map[string]string{"X-Amz-Meta-Civicload-Sha256": "abc"}))
	assert.Empty(t, storedHash(map[string]string{"Other": "abc"}))
}
