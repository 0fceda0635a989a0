// Package dispatch fans inbound events out to topic subscribers.
package dispatch
