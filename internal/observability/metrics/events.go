package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/dkl/dkl-client/internal/observability/errors"
)

// Metric names.
const (
	MetricRefresh       = "auth.refresh"
	MetricRefreshTime   = "auth.refresh.duration"
	MetricRequest       = "api.request"
	MetricRequestTime   = "api.request.duration"
	MetricStreamState   = "stream.state_transition"
	MetricStreamIllegal = "stream.illegal_transition"
	MetricStreamMessage = "stream.message"
	MetricCounterValue  = "steps.current"
	MetricPoll          = "steps.poll"
)

// EmitRefresh records one shared refresh flight.
func EmitRefresh(sink Sink, dur time.Duration, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess, "error_class": ""}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count(MetricRefresh, 1, tags)
	sink.Timing(MetricRefreshTime, dur, map[string]string{"result": tags["result"]})
}

// RequestMetric captures one pipeline request outcome.
type RequestMetric struct {
	Method   string
	Status   int
	Retried  bool
	Duration time.Duration
	Err      error
}

// EmitRequest records a request outcome labelled by status and error class.
func EmitRequest(sink Sink, in RequestMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	}
	tags := map[string]string{
		"method":      in.Method,
		"status":      strconv.Itoa(in.Status),
		"result":      result,
		"retried":     strconv.FormatBool(in.Retried),
		"error_class": obserrors.Classify(in.Err),
	}
	sink.Count(MetricRequest, 1, tags)
	if in.Duration > 0 {
		sink.Timing(MetricRequestTime, in.Duration, map[string]string{"method": in.Method, "result": result})
	}
}

// EmitStateTransition records a counter connection state change.
func EmitStateTransition(sink Sink, from, to string) {
	if sink == nil {
		return
	}
	sink.Count(MetricStreamState, 1, map[string]string{"from": from, "to": to})
}

// EmitIllegalTransition records a state change outside the counter state machine.
func EmitIllegalTransition(sink Sink, from, to string) {
	if sink == nil {
		return
	}
	sink.Count(MetricStreamIllegal, 1, map[string]string{"from": from, "to": to})
}

// EmitStreamMessage records one inbound stream frame by type and handling result.
func EmitStreamMessage(sink Sink, msgType, result string) {
	if sink == nil {
		return
	}
	sink.Count(MetricStreamMessage, 1, map[string]string{"type": msgType, "result": result})
}

// EmitCounterValue publishes the current total.
func EmitCounterValue(sink Sink, value int64, source string) {
	if sink == nil {
		return
	}
	sink.Gauge(MetricCounterValue, float64(value), map[string]string{"source": source})
}

// EmitPoll records one fallback poll.
func EmitPoll(sink Sink, result string) {
	if sink == nil {
		return
	}
	sink.Count(MetricPoll, 1, map[string]string{"result": result})
}
