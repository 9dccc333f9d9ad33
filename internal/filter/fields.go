package filter

import (
	"strconv"
	"strings"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/output"
)

// Fields flattens a watch record into the field names --where understands.
// Unknown record types yield an empty map.
func Fields(rec interface{}) map[string]string {
	switch r := rec.(type) {
	case *output.Change:
		return map[string]string{
			"type":       r.Type,
			"kind":       r.Kind,
			"session_id": r.SessionID,
			"screen_id":  r.ScreenID,
			"version":    strconv.FormatInt(r.Version, 10),
			"stub":       strconv.FormatBool(r.Stub),
			"error":      r.Error,
		}
	case *output.SyncEvent:
		return map[string]string{
			"type":         r.Type,
			"message_type": r.MessageType,
			"session_id":   r.SessionID,
			"action":       r.Action,
			"screen_id":    strings.Join(r.ScreenIDs, ","),
			"file_path":    r.FilePath,
			"error":        r.Error,
		}
	case *output.Status:
		return map[string]string{
			"type":    r.Type,
			"status":  r.Status,
			"attempt": strconv.Itoa(r.Attempt),
		}
	case *output.Trigger:
		return map[string]string{
			"type":      r.Type,
			"trigger":   r.Trigger,
			"screen_id": r.ScreenID,
			"error":     r.Error,
		}
	case *domain.SessionSwitch:
		return map[string]string{
			"type":        r.Type,
			"session_id":  r.SessionID,
			"previous_id": r.PreviousID,
			"source":      r.Source,
		}
	case *output.SessionEnd:
		return map[string]string{
			"type":       r.Type,
			"session_id": r.SessionID,
			"failures":   strconv.Itoa(r.Failures),
			"stubs":      strconv.Itoa(r.Stubs),
		}
	}
	return map[string]string{}
}
