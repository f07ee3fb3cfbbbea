// Package notifications delivers mission outcome messages.
//
// NewService inspects the [notifications] config section and returns a
// Dispatcher over the ntfy and webhook channels that are configured, or a noop
// Service when there are none. Per-event toggles suppress individual events;
// the test event is always sent.
package notifications
