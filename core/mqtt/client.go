// Package mqtt defines the contract of the progress publisher. The Paho
// implementation lives in infra/mqtt.
package mqtt

import "github.com/kilianp07/flexmarket/core/events"

// Publisher sends run progress to a broker.
type Publisher interface {
	// Publish sends ev and returns the message identifier carried by the
	// payload.
	Publish(ev events.Event) (messageID string, err error)
	Disconnect()
}
