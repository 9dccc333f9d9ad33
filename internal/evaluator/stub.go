package evaluator

import (
	"fmt"

	"github.com/vburojevic/hotswap/internal/domain"
)

// stubComponent renders the failing screen id and the error text
type stubComponent struct {
	screenID string
	message  string
}

// Stub returns a component that renders in place of a screen that failed to
// load or evaluate. It never fails.
func Stub(screenID string, err error) Component {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		if ee, ok := err.(*EvaluationError); ok {
			msg = ee.Message
		}
	}
	return &stubComponent{screenID: screenID, message: msg}
}

func (s *stubComponent) Render(map[string]interface{}) (*domain.Node, error) {
	return &domain.Node{
		Type: domain.NodeTypeErrorStub,
		Props: map[string]interface{}{
			"screenId": s.screenID,
			"error":    s.message,
		},
		Children: []*domain.Node{
			{Text: fmt.Sprintf("Screen %q failed to load", s.screenID)},
			{Text: s.message},
		},
	}, nil
}

// IsStub reports whether c is an error stub
func IsStub(c Component) bool {
	_, ok := c.(*stubComponent)
	return ok
}

// SafeRender renders c and falls back to a stub node on failure, so the
// consuming tree always has something to show.
func SafeRender(screenID string, c Component, props map[string]interface{}) *domain.Node {
	if c == nil {
		n, _ := Stub(screenID, fmt.Errorf("screen %q is not loaded", screenID)).Render(nil)
		return n
	}
	n, err := c.Render(props)
	if err != nil {
		n, _ = Stub(screenID, err).Render(nil)
	}
	return n
}
