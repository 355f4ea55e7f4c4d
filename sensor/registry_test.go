package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/manage"
)

func stubBuilder(_ context.Context, cfg config.SensorConfig, deps Deps) (manage.Worker, error) {
	return NewPull(deps.Options(cfg), &scriptedPull{cols: []string{"weight"}})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("feed_scale", stubBuilder))
	require.NoError(t, r.Register("air_quality", stubBuilder))

	assert.Equal(t, []string{"air_quality", "feed_scale"}, r.Kinds())

	err := r.Register("feed_scale", stubBuilder)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicate)

	assert.ErrorIs(t, r.Register("", stubBuilder), errors.ErrInvalidConfig)
	assert.ErrorIs(t, r.Register("broken", nil), errors.ErrInvalidConfig)
}

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("feed_scale", stubBuilder))

	w, err := r.Create(context.Background(), config.SensorConfig{
		Name:   "scale-1",
		Type:   "feed_scale",
		Length: 3,
	}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "scale-1", w.ID())

	_, err = r.Create(context.Background(), config.SensorConfig{
		Name: "mystery-1",
		Type: "mystery",
	}, Deps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownKind)
}

func TestDeps_Options(t *testing.T) {
	deps := Deps{}
	opts := deps.Options(config.SensorConfig{
		Name:        "scale-1",
		Length:      3,
		Duration:    config.Duration(100 * time.Millisecond),
		WaitingTime: config.Duration(time.Second),
		Belonging:   []string{"alice@farm-a"},
	})

	assert.Equal(t, "scale-1", opts.Name)
	assert.Equal(t, 3, opts.Length)
	assert.Equal(t, 100*time.Millisecond, opts.Duration)
	assert.Equal(t, time.Second, opts.Waiting)
	assert.Equal(t, []string{"alice@farm-a"}, opts.Belonging)
}

func TestBase_Belonging(t *testing.T) {
	s, err := NewPull(Options{
		Name:      "scale-1",
		Length:    1,
		Belonging: []string{"alice@farm-a"},
	}, &scriptedPull{cols: []string{"weight"}})
	require.NoError(t, err)

	got := s.Belonging()
	require.Equal(t, []string{"alice@farm-a"}, got)
	got[0] = "mallory@farm-a"
	assert.Equal(t, []string{"alice@farm-a"}, s.Belonging(), "callers get a copy")
}
