package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch subject {
	case SubjectTaskCreated, SubjectTaskUpdated:
		target = &TaskEventPayload{}
	case SubjectMessageLogged:
		target = &MessageLoggedPayload{}
	case SubjectInteractionLogged:
		target = &InteractionLoggedPayload{}
	case SubjectSessionUpserted, SubjectSessionDeactivated:
		target = &SessionEventPayload{}
	case SubjectCleanupCompleted:
		target = &CleanupCompletedPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}

// DLQSubject returns the dead-letter subject for subject.
func DLQSubject(subject string) string {
	return subject + ".dlq"
}

// IsDLQ reports whether subject is a dead-letter subject.
func IsDLQ(subject string) bool {
	return strings.HasSuffix(subject, ".dlq")
}
