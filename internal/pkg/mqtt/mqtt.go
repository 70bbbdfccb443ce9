// Package mqtt publishes sensors to Home Assistant over MQTT discovery.
package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 10 * time.Second
)

var errConnectTimeout = errors.New("unable to connect in time")

type service struct {
	client paho_mqtt.Client
	// discovery topics already announced
	configured sync.Map
}

func New(client paho_mqtt.Client) *service {
	return &service{
		client: client,
	}
}

// NewClient builds a paho client for a broker such as tcp://host:1883.
func NewClient(broker, username, password string) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("ote-spot").
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(connectTimeout)
	if err := token.Error(); err != nil {
		return err
	}
	if res {
		return nil
	}
	return errConnectTimeout
}

func (s *service) Disconnect() {
	s.client.Disconnect(250)
}
