package controllers

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const notifyQueueSize = 256

type notification struct {
	text    string
	channel string
}

// NotifyController fans a message out to every sink from one background
// goroutine. Notify never blocks: when the queue is full the message is
// dropped and logged.
type NotifyController struct {
	sinks  []NotifySink
	queue  chan notification
	logger *logrus.Logger

	once sync.Once
	done chan struct{}
}

func NewNotifyController(logger *logrus.Logger, sinks ...NotifySink) *NotifyController {
	c := &NotifyController{
		sinks:  sinks,
		queue:  make(chan notification, notifyQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}

	go c.run()

	return c
}

func (c *NotifyController) Notify(text, channel string) {
	select {
	case c.queue <- notification{text: text, channel: channel}:
	default:
		c.logger.
			WithField("method", "Notify").
			WithField("channel", channel).
			Warn("notification queue full, dropped: " + text)
	}
}

// Close drains queued messages and stops the worker.
func (c *NotifyController) Close() {
	c.once.Do(func() {
		close(c.queue)
		<-c.done
	})
}

func (c *NotifyController) run() {
	defer close(c.done)

	for n := range c.queue {
		for _, sink := range c.sinks {
			if err := sink.Notify(n.text, n.channel); err != nil {
				c.logger.
					WithField("method", "Notify").
					WithField("channel", n.channel).
					WithError(err).
					Error("notification failed")
			}
		}
	}
}
