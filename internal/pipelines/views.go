package pipelines

// Subjects the pipelines API is viewed through, and the route key the detail
// subject is mounted under.
const (
	SubjectList   = "pipelines"
	SubjectDetail = "pipeline"
	RouteKey      = "pipeline"
)

// DefaultRunLimit is how many recent runs a detail view loads.
const DefaultRunLimit = 20
