package runtime

var (
	Version   = "dev"
	GitCommit = "unknown"
	Timestamp = "unknown"
)
