// Package notify delivers operator notifications.
//
// A [Dispatcher] sends channel messages through a [Sink] and fans direct
// alerts out to the members of configured roles through a [DirectSender].
// Delivery failures are logged and counted, never returned: a notification
// that cannot be delivered must not stop reconciliation.
//
// [LogSink] is a dry-run Sink and DirectSender that keeps messages in memory
// and writes them to the log. The webhook package provides the real one.
package notify
