package queue

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/engine"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/status"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/nsqio/go-nsq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Starter interface {
	StartFunc(c *store.Configuration, algorithms session.Algorithms, deadline string, queued func(l session.Layout, id string)) (string, error)
}

type ConfigurationLoader interface {
	Load(name string) (*store.Configuration, error)
}

type Producer interface {
	Publish(topic string, body []byte) error
}

// Queue feeds run requests from NSQ into the engine and publishes a report
// when a session starts and when it completes.
type Queue struct {
	conf     *configure.NsqConfigure
	engine   Starter
	store    ConfigurationLoader
	appFiles func() string
	dedupe   Deduper
	producer Producer
	consumer *nsq.Consumer
	requests sync.Map
	now      func() time.Time
}

// NewQueue wires a queue. appFiles is asked for the application file pool
// on every report. dedupe may be nil, then redelivered messages are not
// detected.
func NewQueue(conf *configure.NsqConfigure, starter Starter, loader ConfigurationLoader, appFiles func() string, dedupe Deduper) *Queue {
	return &Queue{
		conf:     conf,
		engine:   starter,
		store:    loader,
		appFiles: appFiles,
		dedupe:   dedupe,
		now:      time.Now,
	}
}

// SetProducer replaces the NSQ producer used for reports.
func (q *Queue) SetProducer(p Producer) {
	q.producer = p
}

func (q *Queue) Connect() error {
	config := nsq.NewConfig()
	config.AuthSecret = q.conf.AuthSecret
	config.MaxAttempts = uint16(q.conf.MaxAttempts) + 1
	if q.conf.RequeueDelay > 0 {
		config.DefaultRequeueDelay = q.conf.RequeueDelay
	}
	if q.producer == nil {
		producer, err := nsq.NewProducer(q.conf.Nsqd.Address, config)
		if err != nil {
			return errors.WithStack(err)
		}
		q.producer = producer
	}
	var err error
	q.consumer, err = nsq.NewConsumer(q.conf.Topics.Run, q.conf.Channel, config)
	if err != nil {
		return errors.WithStack(err)
	}
	q.consumer.AddConcurrentHandlers(q, 1)
	if len(q.conf.NsqLookupd.Address) > 0 {
		err = q.consumer.ConnectToNSQLookupds(q.conf.NsqLookupd.Address)
	} else {
		err = q.consumer.ConnectToNSQD(q.conf.Nsqd.Address)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	log.WithField("topic", q.conf.Topics.Run).Info("Connected to NSQ Server")
	return nil
}

func (q *Queue) Stop() {
	if q.consumer != nil {
		q.consumer.Stop()
		<-q.consumer.StopChan
	}
	if p, ok := q.producer.(*nsq.Producer); ok {
		p.Stop()
	}
}

func (q *Queue) HandleMessage(msg *nsq.Message) error {
	msg.Touch()
	m := &RunMessage{}
	if err := json.Unmarshal(msg.Body, m); err != nil {
		log.WithError(err).Warn("dropping malformed run message")
		msg.Finish()
		return nil
	}
	if msg.Attempts > uint16(q.conf.MaxAttempts) {
		q.report(&ReportMessage{
			RequestID: m.RequestID,
			Status:    status.StateError,
			Error:     ErrMaxAttemptsExceeded.Error(),
		})
		msg.Finish()
		return ErrMaxAttemptsExceeded
	}
	_, err := q.Process(m)
	if err != nil {
		log.WithError(err).WithField("request", m.RequestID).Error("run request failed")
		if permanent(err) {
			q.report(&ReportMessage{
				RequestID: m.RequestID,
				Status:    status.StateError,
				Error:     err.Error(),
			})
			msg.Finish()
			return nil
		}
		return err
	}
	msg.Finish()
	return nil
}

// permanent reports whether redelivering the message cannot help.
func permanent(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrInvalidName) ||
		errors.Is(err, store.ErrMalformedRecord) ||
		errors.Is(err, engine.ErrEmptyDeadline)
}

// Process starts the requested session. An empty session id with a nil
// error means the request was a duplicate.
func (q *Queue) Process(m *RunMessage) (string, error) {
	name := strings.TrimSpace(m.ConfigurationName)
	if q.dedupe != nil && m.RequestID != "" {
		seen, err := q.dedupe.Seen(m.RequestID)
		if err != nil {
			return "", err
		}
		if seen {
			log.WithField("request", m.RequestID).Info("duplicate run request ignored")
			return "", nil
		}
	}
	c, err := q.store.Load(name)
	if err == nil {
		var (
			id     string
			layout session.Layout
		)
		id, err = q.engine.StartFunc(c, m.Algorithms, m.Deadline.String(), func(l session.Layout, id string) {
			layout = l
			if m.RequestID != "" {
				q.requests.Store(id, m.RequestID)
			}
		})
		if err == nil {
			r := q.snapshot(layout, id)
			r.RequestID = m.RequestID
			q.report(r)
			return id, nil
		}
	}
	if q.dedupe != nil && m.RequestID != "" {
		if ferr := q.dedupe.Forget(m.RequestID); ferr != nil {
			log.WithError(ferr).Warn("failed to forget request")
		}
	}
	return "", err
}

// SessionCompleted publishes the final report of a session.
func (q *Queue) SessionCompleted(l session.Layout, id string) error {
	r := q.snapshot(l, id)
	if v, ok := q.requests.LoadAndDelete(id); ok {
		r.RequestID = v.(string)
	}
	return q.report(r)
}

func (q *Queue) snapshot(l session.Layout, id string) *ReportMessage {
	return NewReportMessage(status.NewReader(l, q.appFiles()).Read(id))
}

func (q *Queue) report(r *ReportMessage) error {
	if q.producer == nil {
		return nil
	}
	r.Timestamp = q.now().UnixMicro()
	body, err := json.Marshal(r)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := q.producer.Publish(q.conf.Topics.Report, body); err != nil {
		log.WithError(err).Warn("failed to publish report")
		return errors.WithStack(err)
	}
	return nil
}
