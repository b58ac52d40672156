// Package router distributes committed events to their consumers.
//
// A Classifier splits events into two paths by type. Critical events go through an ordered
// CriticalLog (Kafka in production) and are applied by a CriticalConsumer that keeps a
// per-aggregate cursor, so every consumer group sees an aggregate's events once and in
// version order. Standard events are fanned out to one Queue per consumer (Redis in
// production) with a visibility timeout, a bounded number of attempts and a dead-letter
// queue. A DLQMonitor publishes dead-letter depth and age.
//
// Delivery on both paths is at-least-once. Handlers must be idempotent.
package router
