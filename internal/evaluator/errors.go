package evaluator

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// EvaluationError is returned when screen source cannot be turned into a component
type EvaluationError struct {
	ScreenID string
	Message  string
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s: %s", e.ScreenID, e.Message)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// ErrTimeout is the interrupt value used when evaluation or render exceeds its budget
var ErrTimeout = errors.New("evaluation timed out")

// ErrNoComponent is returned when source runs but exports nothing callable
var ErrNoComponent = errors.New("no component exported")

func newEvaluationError(screenID string, err error, timeout time.Duration) *EvaluationError {
	msg := describe(err, timeout)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &EvaluationError{ScreenID: screenID, Message: msg, Err: err}
}

// describe renders goja errors without their Go wrapper noise
func describe(err error, timeout time.Duration) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprintf("%s after %s", ErrTimeout, timeout)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) && exc.Value() != nil {
		return exc.Value().String()
	}
	return err.Error()
}
