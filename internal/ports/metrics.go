package ports

// Metrics receives hub observations. Implementations must be safe for
// concurrent use and must never block.
type Metrics interface {
	SetActiveSessions(n int)
	SetSubscribers(topicKind string, n int)
	ObserveRawEvent(projectID string)
	ObserveSettle(projectID string)
	ObserveFrame(kind string)
	ObserveDroppedSubscriber(topicKind string)
	ObserveAttachFailure()
	ObserveWatcherFailure()
	ObserveNotification(severity string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) SetActiveSessions(int)           {}
func (NopMetrics) SetSubscribers(string, int)      {}
func (NopMetrics) ObserveRawEvent(string)          {}
func (NopMetrics) ObserveSettle(string)            {}
func (NopMetrics) ObserveFrame(string)             {}
func (NopMetrics) ObserveDroppedSubscriber(string) {}
func (NopMetrics) ObserveAttachFailure()           {}
func (NopMetrics) ObserveWatcherFailure()          {}
func (NopMetrics) ObserveNotification(string)      {}

var _ Metrics = NopMetrics{}
