package watcher

// TaskState tracks one file through the processing state machine.
// Transitions are strictly sequential: a file is decoded before it is
// persisted and persisted before it is cleaned; any step may move the
// task to TaskFailed instead.
type TaskState int

const (
	// TaskPending means the file has been detected but not read yet.
	TaskPending TaskState = iota

	// TaskDecoded means the payload parsed into a valid reading.
	TaskDecoded

	// TaskPersisted means both tier writes succeeded.
	TaskPersisted

	// TaskCleaned means the source file has been removed.
	TaskCleaned

	// TaskFailed means a step errored; the file stays in place for the
	// operator or a later rescan.
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskDecoded:
		return "decoded"
	case TaskPersisted:
		return "persisted"
	case TaskCleaned:
		return "cleaned"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IngestionTask represents one file-to-be-processed. A task is owned by
// exactly one worker for the duration of processing and is never shared.
type IngestionTask struct {
	// Path is the file's location in the landing directory.
	Path string

	// Payload is the raw file content, populated when the file is read.
	Payload []byte

	// State is the task's position in the state machine.
	State TaskState

	// Err is the failure that moved the task to TaskFailed, nil
	// otherwise.
	Err error
}

// fail moves the task to TaskFailed, recording the cause.
func (t *IngestionTask) fail(err error) error {
	t.State = TaskFailed
	t.Err = err
	return err
}
