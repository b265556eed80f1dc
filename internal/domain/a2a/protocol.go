package a2a

import a2aproto "github.com/a2aproject/a2a-go/a2a"

// ProtocolState maps a persisted task state onto the A2A protocol state
// reported to remote agents.
func (s TaskState) ProtocolState() a2aproto.TaskState {
	switch s {
	case TaskStatePending:
		return a2aproto.TaskStateSubmitted
	case TaskStateProcessing, TaskStateActive:
		return a2aproto.TaskStateWorking
	case TaskStateCompleted:
		return a2aproto.TaskStateCompleted
	case TaskStateFailed:
		return a2aproto.TaskStateFailed
	case TaskStateCancelled:
		return a2aproto.TaskStateCanceled
	default:
		return a2aproto.TaskStateUnknown
	}
}

// FromProtocolState maps an A2A protocol state back onto a persisted state.
// States without a local equivalent report false.
func FromProtocolState(s a2aproto.TaskState) (TaskState, bool) {
	switch s {
	case a2aproto.TaskStateSubmitted:
		return TaskStatePending, true
	case a2aproto.TaskStateWorking:
		return TaskStateProcessing, true
	case a2aproto.TaskStateCompleted:
		return TaskStateCompleted, true
	case a2aproto.TaskStateFailed:
		return TaskStateFailed, true
	case a2aproto.TaskStateCanceled:
		return TaskStateCancelled, true
	default:
		return "", false
	}
}
