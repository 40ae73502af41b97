package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	// DefaultMaxRecords caps one evaluation batch. Larger uploads are split
	// upstream by the ingestion side.
	DefaultMaxRecords = 5000
)

const (
	RuleIDMaxLen = 50
	PriorityMin  = 0
	PriorityMax  = 100
)

const (
	ServiceName = "rules-service"
)
