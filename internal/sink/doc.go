// Package sink forwards decisions to downstream delivery systems.
//
// The service subscribes to decision.made events on the bus, turns each one
// into a Message and hands it to a Publisher (Kafka, AMQP or the log)
// through a bounded queue drained by a worker pool. Workers share a token
// bucket and retry failed publishes with jittered exponential backoff.
// Nothing here feeds back into the decision: a full queue drops the message
// and counts it.
package sink
