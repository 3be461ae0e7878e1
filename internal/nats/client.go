package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saviobatista/aman-bridge/internal/types"
)

const (
	SubjectFeedAll         = "aman.feed.>"
	SubjectFeedAircraft    = "aman.feed.aircraft"
	SubjectFeedEnvironment = "aman.feed.environment"
	SubjectCommands        = "aman.commands"

	StreamFeed     = "AMAN_FEED"
	StreamCommands = "AMAN_COMMANDS"
)

// ErrUnknownSubject is returned for feed messages on subjects the bridge does not consume
var ErrUnknownSubject = errors.New("unknown feed subject")

// FeedSink receives decoded feed messages
type FeedSink interface {
	UpsertAircraft(now time.Time, snapshot types.AircraftSnapshot)
	SetEnvironment(env types.Environment)
}

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a new NATS client
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	streams := []*nats.StreamConfig{
		{
			Name:     StreamFeed,
			Subjects: []string{SubjectFeedAll},
			Storage:  nats.MemoryStorage,
			MaxAge:   time.Hour,
		},
		{
			Name:     StreamCommands,
			Subjects: []string{SubjectCommands},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
		},
	}
	for _, cfg := range streams {
		// Create stream if it doesn't exist
		_, err = js.AddStream(cfg)
		if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

func (c *Client) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishAircraft publishes one aircraft snapshot on the feed
func (c *Client) PublishAircraft(snapshot *types.AircraftSnapshot) error {
	return c.publish(SubjectFeedAircraft, snapshot)
}

// PublishEnvironment publishes the host environment on the feed
func (c *Client) PublishEnvironment(env *types.Environment) error {
	return c.publish(SubjectFeedEnvironment, env)
}

// PublishCommand publishes an applied client command for the host
func (c *Client) PublishCommand(rec *types.CommandRecord) error {
	return c.publish(SubjectCommands, rec)
}

// SubscribeFeed delivers new feed messages to the sink
func (c *Client) SubscribeFeed(sink FeedSink) error {
	_, err := c.js.Subscribe(SubjectFeedAll, func(msg *nats.Msg) {
		if err := HandleFeedMessage(sink, msg.Subject, msg.Data, time.Now()); err != nil {
			log.Printf("Error handling feed message on %s: %v", msg.Subject, err)
		}
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// SubscribeCommands delivers published client commands to the handler
func (c *Client) SubscribeCommands(handler func(*types.CommandRecord)) error {
	_, err := c.js.Subscribe(SubjectCommands, func(msg *nats.Msg) {
		var rec types.CommandRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			log.Printf("Error unmarshaling command: %v", err)
			return
		}
		handler(&rec)
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// HandleFeedMessage decodes one feed message by subject and applies it to the sink
func HandleFeedMessage(sink FeedSink, subject string, data []byte, now time.Time) error {
	switch subject {
	case SubjectFeedAircraft:
		var snapshot types.AircraftSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return fmt.Errorf("failed to unmarshal aircraft: %w", err)
		}
		if snapshot.Callsign == "" {
			return fmt.Errorf("aircraft message without callsign")
		}
		sink.UpsertAircraft(now, snapshot)
	case SubjectFeedEnvironment:
		var env types.Environment
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("failed to unmarshal environment: %w", err)
		}
		sink.SetEnvironment(env)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
