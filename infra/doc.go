// Package infra contains technical adapters: solver engines, MQTT progress
// publishing, metrics sinks, error monitoring and the result store. These
// packages depend only on the interfaces defined in the core packages.
package infra
