package notification

import (
	"time"
)

type Action int

const (
	ActionExtracted Action = iota + 1
	ActionFailed
	ActionPurged
)

type Sender interface {
	CanSend() bool
	Send(title string, description string, runTime time.Duration, fields []Field, dryRun bool) error
	BuildField(action Action, options BuildOptions) Field
	Name() string
}

type Field struct {
	Name  string
	Value string
}

type BuildOptions struct {
	Archive string
	Kind    string

	Outputs int
	Bytes   uint64

	Reason string
}
