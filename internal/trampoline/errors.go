package trampoline

import (
	"errors"
	"fmt"
)

var (
	// ErrNilCall is reported when a routine yields Call with a nil Func.
	ErrNilCall = errors.New("call with nil func")
	// ErrClosed is returned by Step after Close.
	ErrClosed = errors.New("scheduler closed")
)

// TaskError is a fault reported by a task through Fail.
type TaskError struct {
	Task string
	ID   TaskID
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q (#%d): %v", e.Task, e.ID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// PanicError is a panic recovered while resuming or polling a task.
type PanicError struct {
	Task  string
	ID    TaskID
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %q (#%d) panicked: %v", e.Task, e.ID, e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
