// Package domain defines the core domain models for the image-generation
// pipeline: configuration, templates, runs, artifacts, and events.
package domain

// RunState represents the lifecycle state of a Run.
type RunState string

const (
	RunStatePending  RunState = "PENDING"
	RunStateRunning  RunState = "RUNNING"
	RunStateFinished RunState = "FINISHED"
	RunStateFailed   RunState = "FAILED"
)

// EventType represents the type of a Run event delivered over the Event Bus.
type EventType string

const (
	EventTypeStarted  EventType = "started"
	EventTypeLog      EventType = "log"
	EventTypeProgress EventType = "progress"
	EventTypeFinished EventType = "finished"
	EventTypeFailed   EventType = "failed"
)

// ProviderKind selects which Image Provider strategy a run uses.
type ProviderKind string

const (
	ProviderKindMock   ProviderKind = "mock"
	ProviderKindRemote ProviderKind = "remote"
)

// TemplateKind discriminates the two Template variants.
type TemplateKind string

const (
	TemplateKindAd      TemplateKind = "AdTemplate"
	TemplateKindGeneral TemplateKind = "GeneralPrompt"
)

// RunOutcome is the terminal outcome recorded in a RunSummary.
type RunOutcome string

const (
	RunOutcomeFinished RunOutcome = "finished"
	RunOutcomeFailed   RunOutcome = "failed"
)
