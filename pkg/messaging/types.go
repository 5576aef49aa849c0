package messaging

type ChangeTopic string

const (
	// StepCompleted carries a journal entry for every finished tutorial step.
	StepCompleted ChangeTopic = "step_completed"
)

// DefaultPrefix namespaces exchanges of this project.
const DefaultPrefix = "dataview"

type RabbitConfig struct {
	Url    string
	VHost  string
	Prefix string
}

func (c RabbitConfig) TopicPrefix() string {
	if c.Prefix == "" {
		return DefaultPrefix
	}
	return c.Prefix
}
