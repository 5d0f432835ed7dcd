package entities

// SkippedSlot is a slot a pipeline gave up on, with the taxonomy class of the failure.
type SkippedSlot struct {
	Slot   uint64 `json:"slot"`
	Reason string `json:"reason"`
}

type PipelineStatus struct {
	Pipeline          string `json:"pipeline"`
	LastProcessedSlot uint64 `json:"lastProcessedSlot"`
}
