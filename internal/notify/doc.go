// Package notify delivers queued notifications.
//
// The workflow only ever writes to the outbox table. A Dispatcher drains
// queued rows, renders each into a Message, builds action links from the
// stored raw token, and hands the Message to a Sender. Delivery is at
// least once and never retried here: a failed send marks the row failed
// for an operator to requeue.
package notify
