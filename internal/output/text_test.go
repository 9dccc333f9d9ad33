package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/hotswap/internal/domain"
)

func TestTextWriter(t *testing.T) {
	tests := []struct {
		name string
		rec  interface{}
		want string
	}{
		{"loaded", &Loaded{SessionID: "s1", Version: 3, Screens: 3, Stubs: 1, DurationMs: 12}, "loaded s1 v3: 3 screens, 1 stubs in 12ms\n"},
		{"stub change", &Change{Kind: "screen_reloaded", ScreenID: "B", Version: 5, Stub: true}, "screen_reloaded (stub) B v5\n"},
		{"sync", &SyncEvent{Action: "reloaded", MessageType: "file_change", ScreenIDs: []string{"A"}, FilePath: "src/A.tsx"}, "reloaded file_change A src/A.tsx\n"},
		{"status", &Status{Status: "connecting", Attempt: 2}, "live-sync connecting (attempt 2)\n"},
		{"switch", domain.NewSessionSwitch("s2", "s1", "switch"), "session s2 (switch) was s1\n"},
		{"error", &ErrorRecord{Code: "NO_SESSION", Message: "no active session", Hint: "run session switch"}, "Error [NO_SESSION]: no active session (hint: run session switch)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, NewTextWriter(buf).Write(tt.rec))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestFormatTree(t *testing.T) {
	tree := &domain.Node{
		Type:  "View",
		Props: map[string]interface{}{"testID": "root", "children": "ignored"},
		Children: []*domain.Node{
			{Type: "Text", Children: []*domain.Node{{Text: "Hello"}}},
			{Type: "Image"},
		},
	}
	want := `<View testID=root>
  <Text>
    "Hello"
  </Text>
  <Image />
</View>
`
	assert.Equal(t, want, FormatTree(tree))
	assert.Empty(t, FormatTree(nil))
}
