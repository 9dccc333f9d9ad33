package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	t.Run("screen update", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{"type":"screen_update","sessionId":"s1","timestamp":1700000000000,
			"payload":{"screenId":"home","changeType":"modified"}}`))
		require.NoError(t, err)
		assert.Equal(t, MessageScreenUpdate, msg.Type)
		assert.Equal(t, "s1", msg.SessionID)
		assert.Equal(t, int64(1700000000000), TimeToMillis(msg.Time()))

		var p ScreenUpdatePayload
		require.NoError(t, msg.DecodePayload(&p))
		assert.Equal(t, "home", p.ScreenID)
		assert.Equal(t, ChangeModified, p.ChangeType)
	})

	t.Run("navigation patch keeps absent fields nil", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{"type":"navigation_update","sessionId":"s1",
			"payload":{"changeType":"modified","navigationConfig":{"initialRouteName":"b"}}}`))
		require.NoError(t, err)

		var p NavigationUpdatePayload
		require.NoError(t, msg.DecodePayload(&p))
		require.NotNil(t, p.NavigationConfig.InitialRoute)
		assert.Equal(t, "b", *p.NavigationConfig.InitialRoute)
		assert.Nil(t, p.NavigationConfig.TabBar)
		assert.Nil(t, p.NavigationConfig.Screens)
		assert.False(t, p.NavigationConfig.IsEmpty())
	})

	malformed := map[string]string{
		"not json":       `{`,
		"unknown type":   `{"type":"reboot","payload":{}}`,
		"missing type":   `{"payload":{}}`,
		"null payload":   `{"type":"file_change","payload":null}`,
		"no payload":     `{"type":"file_change"}`,
		"payload shaped": `{"type":"file_change","payload":[1,2]}`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(raw))
			if err == nil {
				var p FileChangePayload
				err = msg.DecodePayload(&p)
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMessage))
		})
	}
}

func TestNavigationConfig_Merge(t *testing.T) {
	a := &ScreenDefinition{ID: "a", Name: "A"}
	b := &ScreenDefinition{ID: "b", Name: "B"}
	base := NewNavigationConfig()
	base.Screens["a"] = a
	base.InitialRoute = "a"

	t.Run("nil patch copies", func(t *testing.T) {
		merged := base.Merge(nil, nil)
		assert.Equal(t, base, merged)
		merged.Screens["x"] = b
		assert.NotContains(t, base.Screens, "x")
	})

	t.Run("initial route only", func(t *testing.T) {
		route := "b"
		merged := base.Merge(&NavigationPatch{InitialRoute: &route}, nil)
		assert.Equal(t, "b", merged.InitialRoute)
		assert.Same(t, a, merged.Screens["a"])
		assert.Equal(t, "a", base.InitialRoute)
	})

	t.Run("screens replace the map", func(t *testing.T) {
		known := map[string]*ScreenDefinition{"a": a, "b": b}
		merged := base.Merge(&NavigationPatch{Screens: map[string]ScreenRoute{
			"b":       {Path: "/b"},
			"unknown": {Name: "U"},
		}}, known)

		require.Len(t, merged.Screens, 1)
		assert.Equal(t, "/b", merged.Screens["b"].Path)
		assert.Equal(t, "B", merged.Screens["b"].Name)
		assert.Empty(t, b.Path)
	})

	t.Run("tab bar copied", func(t *testing.T) {
		tb := &TabBarConfig{Tabs: []string{"a"}}
		merged := base.Merge(&NavigationPatch{TabBar: tb}, nil)
		require.NotNil(t, merged.TabBar)
		assert.NotSame(t, tb, merged.TabBar)
		assert.Equal(t, []string{"a"}, merged.TabBar.Tabs)
	})
}

func TestMillis(t *testing.T) {
	assert.True(t, MillisToTime(0).IsZero())
	assert.Zero(t, TimeToMillis(time.Time{}))
	ts := time.Date(2025, 12, 14, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, ts, MillisToTime(TimeToMillis(ts)))
}

func TestSessionIDOnly(t *testing.T) {
	assert.True(t, (&Session{ID: "s1"}).IDOnly())
	assert.False(t, (&Session{ID: "s1", WorkspacePath: "/w"}).IDOnly())
	var s *Session
	assert.False(t, s.IDOnly())

	ev := NewSessionSwitch("s2", "s1", "switch")
	assert.Equal(t, "session_switch", ev.Type)
	assert.Equal(t, "s1", ev.PreviousID)
}
