// Package eventbus provides the pub/sub channel used to propagate lock
// lifecycle events (acquired, released, backoff) to interested observers,
// locally or across nodes. Backends exist for in-memory use, Redis, NATS and
// Kafka. Events are purely observational: no locking decision ever depends
// on their delivery.
package eventbus
