package shared

const (
	ProjectID = "skycast-project" // Can be overridden by env var in main if needed

	TopicMetrics = "topic-metrics"

	CollectionAccounts   = "accounts"
	CollectionExecutions = "executions"
)
