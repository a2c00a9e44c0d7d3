package data

import (
	"fmt"
	"strings"
)

type JobStatus string

const (
	PendingJobStatus   JobStatus = "pending"
	RunningJobStatus   JobStatus = "running"
	SucceededJobStatus JobStatus = "succeeded"
	FailedJobStatus    JobStatus = "failed"
	CancelledJobStatus JobStatus = "cancelled"
	ScheduledJobStatus JobStatus = "scheduled"
)

// Validate validates the job status
func (status JobStatus) Validate() error {
	switch JobStatus(strings.ToLower(string(status))) {
	case PendingJobStatus, RunningJobStatus, SucceededJobStatus,
		FailedJobStatus, CancelledJobStatus, ScheduledJobStatus:
		return nil
	default:
		return fmt.Errorf("invalid job status: %s", status)
	}
}

// IsTerminal reports whether the status accepts no further transitions.
func (status JobStatus) IsTerminal() bool {
	switch status {
	case SucceededJobStatus, FailedJobStatus, CancelledJobStatus:
		return true
	default:
		return false
	}
}

// TransitionTo transitions the job status to the target state
func (status JobStatus) TransitionTo(targetState JobStatus) error {
	return JobStateMachineWithInitialState(status).TransitionTo(targetState.State())
}

// JobStateMachineWithInitialState returns a state machine for Jobs initialized with the given state
func JobStateMachineWithInitialState(initialState JobStatus) *StateMachine {
	transitions := []StateTransition{
		{From: ScheduledJobStatus.State(), To: PendingJobStatus.State()},   // due-time reached, promoted to the queue
		{From: ScheduledJobStatus.State(), To: CancelledJobStatus.State()}, // cancelled before promotion
		{From: PendingJobStatus.State(), To: RunningJobStatus.State()},     // runner claims the job
		{From: PendingJobStatus.State(), To: CancelledJobStatus.State()},   // cancelled before a claim
		{From: RunningJobStatus.State(), To: SucceededJobStatus.State()},   // processor reports success
		{From: RunningJobStatus.State(), To: FailedJobStatus.State()},      // processor reports failure
		{From: RunningJobStatus.State(), To: PendingJobStatus.State()},     // stall sweep re-queues the job
	}

	return NewStateMachine(initialState.State(), transitions)
}

// JobStatuses returns a list of all possible job statuses
func JobStatuses() []JobStatus {
	return []JobStatus{PendingJobStatus, RunningJobStatus, SucceededJobStatus, FailedJobStatus, CancelledJobStatus, ScheduledJobStatus}
}

// SourceStatuses returns a list of states that the job status can transition from given the target state
func (status JobStatus) SourceStatuses() []JobStatus {
	stateMachine := JobStateMachineWithInitialState(PendingJobStatus)
	fromStates := []JobStatus{}
	for _, fromState := range JobStatuses() {
		if stateMachine.Transitions[fromState.State()][status.State()] {
			fromStates = append(fromStates, fromState)
		}
	}
	return fromStates
}

// ToJobStatus converts a string to a JobStatus, rejecting unknown values.
func ToJobStatus(s string) (JobStatus, error) {
	err := JobStatus(s).Validate()
	if err != nil {
		return "", err
	}

	return JobStatus(strings.ToLower(s)), nil
}

func (status JobStatus) State() State {
	return State(status)
}
