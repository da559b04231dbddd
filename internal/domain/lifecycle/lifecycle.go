package lifecycle

import (
	"time"
)

// State is the position of a search service in the backup/teardown/restore cycle.
type State string

const (
	StateIdle          State = "idle"
	StateBackedUp      State = "backed_up"
	StateDeprovisioned State = "deprovisioned"
	StateReprovisioned State = "reprovisioned"
	StateRestored      State = "restored"
)

// Event is an operator command that drives a transition.
type Event string

const (
	EventBackup      Event = "backup"
	EventDeprovision Event = "deprovision"
	EventProvision   Event = "provision"
	EventRestore     Event = "restore"
)

// ServiceInstance is the external, billed search service.
type ServiceInstance struct {
	Name           string `json:"serviceName"`
	Endpoint       string `json:"endpoint"`
	SKU            string `json:"sku,omitempty"`
	Region         string `json:"region,omitempty"`
	ReplicaCount   int    `json:"replicaCount,omitempty"`
	PartitionCount int    `json:"partitionCount,omitempty"`
}

// ProvisionParams are the declarative inputs handed to the provisioning collaborator.
type ProvisionParams struct {
	ServiceName    string            `json:"serviceName"`
	SKU            string            `json:"sku"`
	ReplicaCount   int               `json:"replicaCount"`
	PartitionCount int               `json:"partitionCount"`
	Region         string            `json:"region"`
	Parameters     map[string]string `json:"parameters,omitempty"`
}

// Record is the persisted lifecycle position of one service.
type Record struct {
	ServiceName string    `json:"serviceName" gorm:"primaryKey"`
	State       State     `json:"state" gorm:"not null"`
	Endpoint    string    `json:"endpoint"`
	LastRunID   string    `json:"lastRunId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Record) TableName() string { return "lifecycle_records" }

// Transition is one entry of the lifecycle history.
type Transition struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ServiceName string    `json:"serviceName" gorm:"not null;index"`
	FromState   State     `json:"fromState" gorm:"not null"`
	ToState     State     `json:"toState" gorm:"not null"`
	Event       Event     `json:"event" gorm:"not null"`
	RunID       string    `json:"runId"`
	Note        string    `json:"note"`
	CreatedAt   time.Time `json:"createdAt" gorm:"index"`
}

func (Transition) TableName() string { return "lifecycle_transitions" }

// Run is the persisted summary of one batch report.
type Run struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	ServiceName string    `json:"serviceName" gorm:"not null;index"`
	Operation   string    `json:"operation" gorm:"not null"`
	Succeeded   []string  `json:"succeeded" gorm:"serializer:json"`
	Failed      []string  `json:"failed" gorm:"serializer:json"`
	Reasons     []string  `json:"reasons" gorm:"serializer:json"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

func (Run) TableName() string { return "lifecycle_runs" }
