package engine

import "errors"

var (
	// ErrCyclicDependency aborts a reschedule whose cascade would revisit a
	// task; nothing is written when it fires.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrAllocationExceeded rejects a cross-portfolio confirmation that would
	// push a resource's combined allocation past 100 percent.
	ErrAllocationExceeded = errors.New("allocation exceeds 100 percent")

	// ErrResourcePoolEmpty means auto-assign found no resources at all.
	ErrResourcePoolEmpty = errors.New("resource pool is empty")

	// ErrTemplateNotFound means no task template exists for the requested
	// project type and scale.
	ErrTemplateNotFound = errors.New("template not found")

	ErrInvalidDateRange = errors.New("end date before start date")
)
