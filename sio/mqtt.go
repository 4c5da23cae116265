/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// TopicKey is the value that gets the topic of an MQTT message when
// MQTTOptions.InjectTopic is set.
const TopicKey = "MQTT_TOPIC"

// MQTTOptions follow mosquitto_sub's command line arguments where
// they can.
type MQTTOptions struct {
	Broker    string        `json:"broker"`
	ClientID  string        `json:"client_id,omitempty"`
	KeepAlive util.Duration `json:"keep_alive,omitempty"`
	Username  string        `json:"username,omitempty"`
	Password  string        `json:"password,omitempty"`
	Reconnect bool          `json:"reconnect,omitempty"`
	Clean     *bool         `json:"clean,omitempty"`

	// Quiesce is how long Stop waits for work in progress.
	Quiesce util.Duration `json:"quiesce,omitempty"`

	CertFile string `json:"cert,omitempty"`
	KeyFile  string `json:"key,omitempty"`
	CAFile   string `json:"cafile,omitempty"`
	Insecure bool   `json:"insecure,omitempty"`

	// Topics are subscription topics, each optionally followed
	// by ":QOS".
	Topics []string `json:"topics"`

	// InjectTopic stores the topic in TopicKey.
	InjectTopic bool `json:"inject_topic,omitempty"`

	// InTimeout is how long a message may wait for the pipeline
	// before it's dropped.
	InTimeout util.Duration `json:"in_timeout,omitempty"`
}

// MQTTSource subscribes to topics on an MQTT broker.
type MQTTSource struct {
	MQTTOptions
	Client mqtt.Client

	out    chan *logmsg.LogMessage
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sync.Mutex
	stopped bool
}

// NewMQTTSource makes an MQTTSource from configuration options.
func NewMQTTSource(opts map[string]interface{}) (Source, error) {
	var o MQTTOptions
	if err := util.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	return NewMQTTSourceWithOptions(o)
}

// NewMQTTSourceWithOptions makes an MQTTSource and its client.  The
// client doesn't connect until Start.
func NewMQTTSourceWithOptions(o MQTTOptions) (*MQTTSource, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt source needs a broker")
	}
	if len(o.Topics) == 0 {
		return nil, errors.New("mqtt source needs topics")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetKeepAlive(o.KeepAlive.Or(10 * time.Second))
	opts.Username = o.Username
	opts.Password = o.Password
	opts.AutoReconnect = o.Reconnect
	opts.CleanSession = o.Clean == nil || *o.Clean

	tlsConf, err := o.tlsConfig()
	if err != nil {
		return nil, err
	}
	if tlsConf != nil {
		opts.SetTLSConfig(tlsConf)
	}

	s := &MQTTSource{
		MQTTOptions: o,
		out:         make(chan *logmsg.LogMessage),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		util.Error("MQTT connection lost", zap.String("broker", o.Broker), zap.Error(err))
	}
	opts.DefaultPublishHandler = func(client mqtt.Client, msg mqtt.Message) {
		s.handle(msg)
	}

	s.Client = mqtt.NewClient(opts)
	return s, nil
}

func (o *MQTTOptions) tlsConfig() (*tls.Config, error) {
	if o.CAFile == "" && o.KeyFile == "" && !o.Insecure {
		return nil, nil
	}

	conf := &tls.Config{
		InsecureSkipVerify: o.Insecure,
	}

	if o.CAFile != "" {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, err
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			util.Warn("No certs appended, using system certs only", zap.String("cafile", o.CAFile))
		}
		conf.RootCAs = rootCAs
	}

	if o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, err
		}
		conf.Certificates = []tls.Certificate{cert}
	}

	return conf, nil
}

func (s *MQTTSource) Messages() <-chan *logmsg.LogMessage {
	return s.out
}

// Start connects to the broker and subscribes.
func (s *MQTTSource) Start(ctx context.Context) error {
	util.Debug("Attempting to connect to broker", zap.String("broker", s.Broker))
	if token := s.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	for _, topic := range s.Topics {
		topic, qos := parseTopic(topic)
		if topic == "" {
			continue
		}
		util.Debug("Subscribing", zap.String("topic", topic), zap.Uint8("qos", qos))
		if t := s.Client.Subscribe(topic, qos, nil); t.Wait() && t.Error() != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, t.Error())
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop(context.Background())
		case <-s.ctx.Done():
		}
	}()
	return nil
}

// Stop terminates the MQTT session.
func (s *MQTTSource) Stop(ctx context.Context) error {
	s.Lock()
	if s.stopped {
		s.Unlock()
		return nil
	}
	s.stopped = true
	s.Unlock()

	s.cancel()
	if s.Client.IsConnected() {
		s.Client.Disconnect(uint(s.Quiesce.Or(100 * time.Millisecond).Milliseconds()))
	}
	s.wg.Wait()
	close(s.out)
	return nil
}

// handle is the publish handler, which gets the messages sent to us
// due to our subscriptions.
func (s *MQTTSource) handle(m mqtt.Message) {
	s.Lock()
	if s.stopped {
		s.Unlock()
		return
	}
	s.wg.Add(1)
	s.Unlock()
	defer s.wg.Done()

	msg := logmsg.FromJSON(m.Payload())
	if s.InjectTopic {
		msg.SetValue(TopicKey, m.Topic(), logmsg.TypeString)
	}

	to := time.NewTimer(s.InTimeout.Or(time.Second))
	defer to.Stop()

	select {
	case <-s.ctx.Done():
		msg.Unref()
	case s.out <- msg:
		util.Trace("MQTT message received", zap.String("topic", m.Topic()))
	case <-to.C:
		util.Warn("MQTT message dropped due to stall", zap.String("topic", m.Topic()))
		msg.Unref()
	}
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	var qos byte
	if _, err := fmt.Sscanf(s[i+1:], "%d", &qos); err != nil || 2 < qos {
		return s, 0
	}
	return s[:i], qos
}
