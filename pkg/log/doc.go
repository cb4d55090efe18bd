/*
Package log provides structured logging for lwm2mcored using zerolog.

It wraps zerolog with a single global logger, configurable level and
output format, and component-scoped child loggers (WithComponent,
WithSSID, WithPath) so that log lines from the data model engine, the
observation pump, and the built-in object adapters can be filtered and
correlated without passing a logger through every call.

Call Init once at startup with the desired Config; every package-level
helper (Info/Debug/Warn/Error) and every WithXxx logger built afterward
reads from the same global Logger.
*/
package log
