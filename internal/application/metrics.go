package application

// Metrics receives lifecycle counters. Implementations must be safe for concurrent use.
type Metrics interface {
	AppointmentCreated(outcome string)
	AppointmentTransitioned(mode UpdateMode, outcome string)
	NotificationAttempted(path, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) AppointmentCreated(string)                  {}
func (nopMetrics) AppointmentTransitioned(UpdateMode, string) {}
func (nopMetrics) NotificationAttempted(string, string)       {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
