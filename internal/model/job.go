package model

import (
	"fmt"
	"time"
)

// StorageKind identifies how a storage volume's content is obtained.
type StorageKind string

const (
	// StorageIPFS references immutable content on IPFS by CID,
	// fetched through an HTTP gateway.
	StorageIPFS StorageKind = "ipfs"
	// StorageLocal references a path on the local host.
	// Used for tests and offline runs.
	StorageLocal StorageKind = "local"
)

// StorageSpec describes one storage volume attached to a job: where its
// content comes from and where it is mounted inside the container.
type StorageSpec struct {
	Kind StorageKind `json:"kind" yaml:"kind"`
	// CID is the content identifier for ipfs volumes.
	CID string `json:"cid,omitempty" yaml:"cid,omitempty"`
	// Source is the host path for local volumes.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	// Name labels output volumes (e.g. "outputs").
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Path is the mount point inside the container.
	Path string `json:"path" yaml:"path"`
}

// ResourceSpec carries the resource requests for a job.
// Values are opaque strings passed through to the container runtime
// (e.g. "2", "4gb", "1").
type ResourceSpec struct {
	CPU    string `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Memory string `json:"memory,omitempty" yaml:"memory,omitempty"`
	GPU    string `json:"gpu,omitempty" yaml:"gpu,omitempty"`
}

// EngineSpec describes the container to run.
type EngineSpec struct {
	Image      string   `json:"image" yaml:"image"`
	Entrypoint []string `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
	Env        []string `json:"env,omitempty" yaml:"env,omitempty"`
	WorkingDir string   `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
}

// JobSpec is the full, immutable description of a job as submitted.
// Its canonical-JSON digest (see digest.go) identifies the spec content;
// the job ID identifies the submission.
type JobSpec struct {
	Engine      EngineSpec        `json:"engine" yaml:"engine"`
	Inputs      []StorageSpec     `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []StorageSpec     `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Resources   ResourceSpec      `json:"resources,omitempty" yaml:"resources,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Validate checks a JobSpec for structural problems before it is accepted.
// It does not touch the network or the container runtime.
func (s *JobSpec) Validate() error {
	if s.Engine.Image == "" {
		return fmt.Errorf("job spec: engine image is required")
	}
	for i, in := range s.Inputs {
		switch in.Kind {
		case StorageIPFS:
			if err := ValidateCID(in.CID); err != nil {
				return fmt.Errorf("job spec: input %d: %w", i, err)
			}
		case StorageLocal:
			if in.Source == "" {
				return fmt.Errorf("job spec: input %d: local input requires a source path", i)
			}
		default:
			return fmt.Errorf("job spec: input %d: unknown storage kind %q", i, in.Kind)
		}
		if in.Path == "" {
			return fmt.Errorf("job spec: input %d: mount path is required", i)
		}
	}
	for i, out := range s.Outputs {
		if out.Name == "" {
			return fmt.Errorf("job spec: output %d: name is required", i)
		}
		if out.Path == "" {
			return fmt.Errorf("job spec: output %d: path is required", i)
		}
	}
	return nil
}

// JobState is a job's position in its lifecycle.
type JobState string

const (
	StateQueued     JobState = "Queued"
	StatePreparing  JobState = "Preparing"
	StateRunning    JobState = "Running"
	StatePublishing JobState = "Publishing"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
	StateCancelled  JobState = "Cancelled"
)

// legalTransitions is the authoritative edge set of the state machine.
// Failed and Cancelled are reachable from every non-terminal state.
var legalTransitions = map[JobState][]JobState{
	StateQueued:     {StatePreparing, StateFailed, StateCancelled},
	StatePreparing:  {StateRunning, StateFailed, StateCancelled},
	StateRunning:    {StatePublishing, StateFailed, StateCancelled},
	StatePublishing: {StateCompleted, StateFailed, StateCancelled},
}

// IsTerminal reports whether no further transitions are possible.
func (s JobState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a known state.
func (s JobState) IsValid() bool {
	switch s {
	case StateQueued, StatePreparing, StateRunning, StatePublishing,
		StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving
// from s to next.
func (s JobState) CanTransition(next JobState) bool {
	for _, t := range legalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error if s -> next is illegal.
func ValidateTransition(s, next JobState) error {
	if !s.IsValid() {
		return fmt.Errorf("unknown job state %q", s)
	}
	if !next.IsValid() {
		return fmt.Errorf("unknown job state %q", next)
	}
	if !s.CanTransition(next) {
		return fmt.Errorf("illegal state transition %s -> %s", s, next)
	}
	return nil
}

// Job is one submission: a spec plus lifecycle bookkeeping.
type Job struct {
	// ID is a UUIDv7, so jobs sort by creation time.
	ID string `json:"id" yaml:"id"`
	// SpecDigest is the content-addressed hash of Spec (see digest.go).
	// Two submissions of the same spec share a digest but not an ID.
	SpecDigest string    `json:"spec_digest" yaml:"spec_digest"`
	Spec       JobSpec   `json:"spec" yaml:"spec"`
	State      JobState  `json:"state" yaml:"state"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// JobEvent is one append-only lifecycle record.
// Seq is allocated per job by the store at insert time; ordering by seq
// is deterministic even when wall clocks collide.
type JobEvent struct {
	JobID     string    `json:"job_id" yaml:"job_id"`
	Seq       int64     `json:"seq" yaml:"seq"`
	State     JobState  `json:"state" yaml:"state"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// JobOutputs records where a job's published results live.
type JobOutputs struct {
	JobID string `json:"job_id" yaml:"job_id"`
	// Publisher names the publisher that produced the reference.
	Publisher string `json:"publisher" yaml:"publisher"`
	// Reference is publisher-specific: a directory for the local
	// publisher, a URL for s3.
	Reference string `json:"reference" yaml:"reference"`
}
