package domain

// Step is one named stage of the indexing pipeline, executed in a fixed order.
type Step string

const (
	StepInitializing          Step = "initializing"
	StepFetchingRecords       Step = "fetching_records"
	StepFilteringByTimeframe  Step = "filtering_by_timeframe"
	StepAggregatingVolume     Step = "aggregating_volume"
	StepIdentifyingCategories Step = "identifying_categories"
	StepCountingContractCalls Step = "counting_contract_calls"
	StepFinalizing            Step = "finalizing"
)

// StepStatus is the execution state of a single pipeline step.
type StepStatus string

const (
	StepStatusIdle      StepStatus = "idle"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// RunState is the overall state of one indexing session.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateHalted    RunState = "halted"
	RunStateCancelled RunState = "cancelled"
)
