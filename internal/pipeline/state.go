package pipeline

import (
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// Stage names one pipeline step. Stage names appear in execution
// records and logs.
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageExtract    Stage = "extract"
	StageStructure  Stage = "structure"
	StageGrade      Stage = "grade"
	StageRegrade    Stage = "regrade"
	StageFeedback   Stage = "feedback"
	StageReview     Stage = "review"
	StageRender     Stage = "render"
)

// stageSpec declares, for one stage, the states it may start from, the
// transient state while it runs and the state it lands in on success.
type stageSpec struct {
	sources []model.JobState
	running model.JobState
	done    model.JobState
}

var stageSpecs = map[Stage]stageSpec{
	StagePreprocess: {
		sources: []model.JobState{model.JobStateUploaded},
		running: model.JobStatePreprocessing,
		done:    model.JobStatePreprocessed,
	},
	StageExtract: {
		sources: []model.JobState{model.JobStatePreprocessed},
		running: model.JobStateExtracting,
		done:    model.JobStateExtracted,
	},
	StageStructure: {
		sources: []model.JobState{model.JobStateExtracted},
		running: model.JobStateStructuring,
		done:    model.JobStateStructured,
	},
	StageGrade: {
		sources: []model.JobState{model.JobStateStructured},
		running: model.JobStateGrading,
		done:    model.JobStateGraded,
	},
	StageRegrade: {
		sources: []model.JobState{
			model.JobStateGraded,
			model.JobStateFeedbackReady,
			model.JobStateReviewed,
			model.JobStateCompleted,
		},
		running: model.JobStateGrading,
		done:    model.JobStateGraded,
	},
	StageFeedback: {
		sources: []model.JobState{model.JobStateGraded},
		running: model.JobStateGeneratingFeedback,
		done:    model.JobStateFeedbackReady,
	},
	StageReview: {
		sources: []model.JobState{
			model.JobStateFeedbackReady,
			model.JobStateReviewed,
		},
		running: model.JobStateUnderReview,
		done:    model.JobStateReviewed,
	},
	StageRender: {
		sources: []model.JobState{
			model.JobStateFeedbackReady,
			model.JobStateReviewed,
			model.JobStateCompleted,
		},
		running: model.JobStateRendering,
		done:    model.JobStateCompleted,
	},
}

// stateProgress maps each state to its pipeline progress target.
var stateProgress = map[model.JobState]int{
	model.JobStateUploaded:           10,
	model.JobStatePreprocessing:      20,
	model.JobStatePreprocessed:       25,
	model.JobStateExtracting:         30,
	model.JobStateExtracted:          40,
	model.JobStateStructuring:        50,
	model.JobStateStructured:         55,
	model.JobStateGrading:            65,
	model.JobStateGraded:             75,
	model.JobStateGeneratingFeedback: 80,
	model.JobStateFeedbackReady:      90,
	model.JobStateUnderReview:        90,
	model.JobStateReviewed:           92,
	model.JobStateRendering:          95,
	model.JobStateCompleted:          100,
}

// CanStart reports whether stage may legally begin from the given state.
func CanStart(stage Stage, from model.JobState) bool {
	spec, ok := stageSpecs[stage]
	if !ok {
		return false
	}
	for _, s := range spec.sources {
		if s == from {
			return true
		}
	}
	return false
}

// RunningState returns the transient state a stage moves the job into.
func RunningState(stage Stage) model.JobState { return stageSpecs[stage].running }

// DoneState returns the state a stage lands in on success.
func DoneState(stage Stage) model.JobState { return stageSpecs[stage].done }

// ProgressFor returns the progress target of a state, clamped so that a
// job's progress never decreases while it is not failed. Recompute
// paths (regrade, review) therefore keep the high-water mark.
func ProgressFor(state model.JobState, current int) int {
	p, ok := stateProgress[state]
	if !ok || p < current {
		return current
	}
	return p
}
