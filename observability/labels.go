package observability

const (
	// StackName is the metric label identifying one simulated stack, so
	// many simulations can be exported by the same process.
	StackName = "stack_name"

	// DefaultStackName is used when a config leaves the stack name empty.
	DefaultStackName = "default"
)

// MetricLabels contains the configurable metric labels shared by every
// component config.
type MetricLabels struct {
	StackName string `yaml:"stackName"`
}

// Stack returns the configured stack name or DefaultStackName.
func (m MetricLabels) Stack() string {
	if m.StackName == "" {
		return DefaultStackName
	}
	return m.StackName
}
