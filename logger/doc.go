// Package logger provides structured logging for wirekit using zerolog.
//
// The engine logs scope lifecycle, plan compilation and disposal failures
// through a *Logger that callers may replace via di.WithLogger. Component
// loggers are tagged with a component name and carry the standard field
// keys defined in fields.go.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("wirekit.di")
//	log.Debug("plan compiled", logger.Fields(logger.FieldServiceType, "*app.Service"))
package logger
