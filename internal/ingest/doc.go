// Package ingest consumes domain events from Kafka and turns them into
// notifications.
//
// Every topic carries the same JSON envelope:
//
//	{"event_type": "post.matched", "payload": {...}}
//
// A Mapper renders titles and bodies from YAML templates and fans each event
// out to its recipients' enabled channels. A Processor persists the result
// and makes the first delivery attempt; notifications scheduled for later are
// handed to a redeliver job. Malformed messages are logged and skipped; a
// message that fails for any other reason is retried before its offset is marked.
//
// Notification ids are derived from the message's topic, partition and
// offset, so a message consumed twice after a rebalance does not create
// duplicates.
package ingest
