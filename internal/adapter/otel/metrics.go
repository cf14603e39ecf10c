package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskmanager"

// Metrics holds the task manager metric instruments.
type Metrics struct {
	TasksCreated   metric.Int64Counter
	TasksUpdated   metric.Int64Counter
	TasksDeleted   metric.Int64Counter
	UsersAssigned  metric.Int64Counter
	NotifyFailures metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksCreated, err = meter.Int64Counter("taskmanager.tasks.created",
		metric.WithDescription("Number of tasks created"))
	if err != nil {
		return nil, err
	}

	m.TasksUpdated, err = meter.Int64Counter("taskmanager.tasks.updated",
		metric.WithDescription("Number of task updates that changed at least one field"))
	if err != nil {
		return nil, err
	}

	m.TasksDeleted, err = meter.Int64Counter("taskmanager.tasks.deleted",
		metric.WithDescription("Number of tasks soft-deleted"))
	if err != nil {
		return nil, err
	}

	m.UsersAssigned, err = meter.Int64Counter("taskmanager.assignments.created",
		metric.WithDescription("Number of new task assignments"))
	if err != nil {
		return nil, err
	}

	m.NotifyFailures, err = meter.Int64Counter("taskmanager.notify.failures",
		metric.WithDescription("Number of change notifications that could not be published"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
