// internal/pipeline/stages.go
package pipeline

import (
	"github.com/sublate/sublate/internal/models"
)

// StageOrder is the pipeline sequence every task moves through.
var StageOrder = []models.Stage{
	models.StageResolve,
	models.StageFetch,
	models.StageTranscribe,
	models.StageTranslate,
	models.StageEmbed,
}

// stageWeights assigns each stage a fixed share of the 0-100 progress range.
// The shares reflect relative stage cost, not precision; they only need to
// sum to 100 so the progress signal stays smooth and monotonic.
var stageWeights = map[models.Stage]int{
	models.StageResolve:    5,
	models.StageFetch:      25,
	models.StageTranscribe: 30,
	models.StageTranslate:  30,
	models.StageEmbed:      10,
}

var stageStatuses = map[models.Stage]models.TaskStatus{
	models.StageResolve:    models.TaskStatusResolving,
	models.StageFetch:      models.TaskStatusFetching,
	models.StageTranscribe: models.TaskStatusTranscribing,
	models.StageTranslate:  models.TaskStatusTranslating,
	models.StageEmbed:      models.TaskStatusEmbedding,
}

var stageMessages = map[models.Stage]string{
	models.StageResolve:    "resolving item metadata",
	models.StageFetch:      "downloading video",
	models.StageTranscribe: "transcribing audio",
	models.StageTranslate:  "translating subtitles",
	models.StageEmbed:      "embedding subtitles",
}

// StageBand returns the start of a stage's progress band and its width.
func StageBand(stage models.Stage) (start, width int) {
	for _, s := range StageOrder {
		if s == stage {
			return start, stageWeights[s]
		}
		start += stageWeights[s]
	}
	return start, 0
}

// StageStatus returns the task status representing a stage in flight.
func StageStatus(stage models.Stage) models.TaskStatus {
	return stageStatuses[stage]
}

// StageMessage returns the human-readable description of a stage.
func StageMessage(stage models.Stage) string {
	return stageMessages[stage]
}
