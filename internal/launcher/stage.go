package launcher

import "fmt"

// Stage is a state of the launch state machine.
type Stage string

const (
	StageStart         Stage = "START"
	StageCheckDeps     Stage = "CHECK_DEPS"
	StageFetchManifest Stage = "FETCH_MANIFEST"
	StageSyncFiles     Stage = "SYNC_FILES"
	StagePersistMarker Stage = "PERSIST_MARKER"
	StageSelfUpdate    Stage = "SELF_UPDATE"
	StageLaunch        Stage = "LAUNCH"
	StageRunning       Stage = "RUNNING"
	StageRestart       Stage = "RESTART"
	StageFailed        Stage = "FAILED"
)

// StageError is a fatal error tagged with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
