package watcher

// ConvertEvent exposes convertEvent to the external test package.
var ConvertEvent = convertEvent
