package physical

const (
	promNamespace = "physical_layer"
)
