package constants

// RunState is the canonical stage marker for a pipeline run.
type RunState string

// Stable values (these exact strings appear in logs and diagnostics).
const (
	RunReceived        RunState = "RECEIVED"
	RunExtracting      RunState = "EXTRACTING"
	RunClassifying     RunState = "CLASSIFYING"
	RunFeatureBuilding RunState = "FEATURE_BUILDING"
	RunPredicting      RunState = "PREDICTING"
	RunSynthesizing    RunState = "SYNTHESIZING"
	RunComplete        RunState = "COMPLETE"
)
