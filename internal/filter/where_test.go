package filter

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/output"
)

func TestParseWhereClause(t *testing.T) {
	tests := []struct {
		clause string
		field  string
		op     string
		value  string
	}{
		{"action=failed", "action", "=", "failed"},
		{"kind != screen_reloaded", "kind", "!=", "screen_reloaded"},
		{"screen_id~^Home", "screen_id", "~", "^Home"},
		{"error!~timeout", "error", "!~", "timeout"},
		{"version>=3", "version", ">=", "3"},
		{"Attempt<=2", "attempt", "<=", "2"},
		{"file_path$.tsx", "file_path", "$", ".tsx"},
	}
	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			wc, err := ParseWhereClause(tt.clause)
			require.NoError(t, err)
			assert.Equal(t, tt.field, wc.Field)
			assert.Equal(t, tt.op, wc.Operator)
			assert.Equal(t, tt.value, wc.Value)
		})
	}
}

func TestParseWhereClause_Invalid(t *testing.T) {
	for _, clause := range []string{"action", "=failed", "action=", "screen_id~[", "version>=new"} {
		t.Run(clause, func(t *testing.T) {
			_, err := ParseWhereClause(clause)
			require.Error(t, err)
		})
	}
}

func TestWhereFilter_Records(t *testing.T) {
	reload := &output.Change{Type: "change", Kind: "screen_reloaded", SessionID: "s1", ScreenID: "HomeScreen", Version: 4}
	stub := &output.Change{Type: "change", Kind: "screen_reloaded", SessionID: "s1", ScreenID: "Settings", Version: 5, Stub: true, Error: "boom"}
	failed := &output.SyncEvent{Type: "sync", MessageType: "file_change", Action: "failed", ScreenIDs: []string{"A", "B"}, FilePath: "src/a.tsx"}
	status := &output.Status{Type: "status", Status: "connecting", Attempt: 3}
	sw := domain.NewSessionSwitch("s2", "s1", "switch")

	tests := []struct {
		name    string
		clauses []string
		rec     interface{}
		want    bool
	}{
		{"type", []string{"type=change"}, reload, true},
		{"kind and stub", []string{"kind=screen_reloaded", "stub=true"}, stub, true},
		{"stub excludes ok", []string{"stub=true"}, reload, false},
		{"prefix", []string{"screen_id^Home"}, reload, true},
		{"version floor", []string{"version>=5"}, reload, false},
		{"version ceiling", []string{"version<=5"}, stub, true},
		{"sync action", []string{"action=failed", "file_path$.tsx"}, failed, true},
		{"joined screen ids", []string{"screen_id~(^|,)B($|,)"}, failed, true},
		{"attempt", []string{"attempt>=3"}, status, true},
		{"missing numeric field", []string{"version>=1"}, status, false},
		{"session switch", []string{"source=switch", "previous_id=s1"}, sw, true},
		{"negated regex", []string{"error!~boom"}, stub, false},
		{"unknown record", []string{"type=anything"}, "plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewWhereFilter(tt.clauses)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(tt.rec))
		})
	}
}

func TestWhereFilter_NilMatchesAll(t *testing.T) {
	f, err := NewWhereFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, f.Match(&output.Status{Status: "connected"}))
}

func TestDedupe_Consecutive(t *testing.T) {
	f := NewDedupeFilter(0, clock.NewMock())
	a := &output.SyncEvent{MessageType: "file_change", Action: "reloaded", ScreenIDs: []string{"A"}}
	b := &output.SyncEvent{MessageType: "file_change", Action: "reloaded", ScreenIDs: []string{"B"}}

	assert.True(t, f.Check(a).ShouldEmit)
	res := f.Check(a)
	assert.False(t, res.ShouldEmit)
	assert.Equal(t, 2, res.Count)
	assert.True(t, f.Check(b).ShouldEmit)
	assert.True(t, f.Check(a).ShouldEmit)
	assert.Equal(t, 1, f.Suppressed())
}

func TestDedupe_Window(t *testing.T) {
	mock := clock.NewMock()
	f := NewDedupeFilter(time.Second, mock)
	a := &output.Change{Kind: "screen_reloaded", ScreenID: "A", Version: 1}
	b := &output.Change{Kind: "screen_reloaded", ScreenID: "B", Version: 2}

	assert.True(t, f.Check(a).ShouldEmit)
	assert.True(t, f.Check(b).ShouldEmit)
	mock.Add(500 * time.Millisecond)
	a2 := *a
	a2.Version = 3
	assert.False(t, f.Check(&a2).ShouldEmit)

	mock.Add(2 * time.Second)
	assert.True(t, f.Check(a).ShouldEmit)

	f.Reset()
	assert.Equal(t, 0, f.Suppressed())
	assert.True(t, f.Check(a).ShouldEmit)
}

func TestDedupe_UnkeyedAlwaysEmits(t *testing.T) {
	f := NewDedupeFilter(time.Minute, clock.NewMock())
	st := &output.Status{Status: "connecting", Attempt: 1}
	assert.True(t, f.Check(st).ShouldEmit)
	assert.True(t, f.Check(st).ShouldEmit)
}
