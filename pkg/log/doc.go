// Package log wraps zerolog with the component/client-scoped child
// loggers used throughout dockschedule: WithComponent for a subsystem,
// WithClientID for a publisher or worker's own store/broker connection,
// WithCronID and WithJobID for per-record context.
package log
