package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/engine"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/solver"
	"github.com/lcpu-club/optdeadline/status"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type holdRunner struct {
	hold chan struct{}
}

func (r *holdRunner) Run(inv *solver.Invocation) (int, error) {
	<-r.hold
	if inv.Flag == session.FlagAlgorithm2 {
		result := "----DUMP PROCESS----\nNo. Cores: 4;\nDeadline: 90.5\n"
		name := filepath.Join(inv.WorkDir, "output_result_Algorithm2__abc123.txt")
		return 0, os.WriteFile(name, []byte(result), 0644)
	}
	return 0, nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []*ReportMessage
}

func (p *fakeProducer) Publish(topic string, body []byte) error {
	m := &ReportMessage{}
	if err := json.Unmarshal(body, m); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
	return nil
}

func (p *fakeProducer) Messages() []*ReportMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*ReportMessage{}, p.messages...)
}

type memoryDeduper struct {
	seen map[string]bool
}

func (d *memoryDeduper) Seen(key string) (bool, error) {
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

func (d *memoryDeduper) Forget(key string) error {
	delete(d.seen, key)
	return nil
}

type fakeDelegate struct {
	finished int
	requeued int
}

func (d *fakeDelegate) OnFinish(*nsq.Message) { d.finished++ }
func (d *fakeDelegate) OnRequeue(*nsq.Message, time.Duration, bool) { d.requeued++ }
func (d *fakeDelegate) OnTouch(*nsq.Message) {}

func newMessage(t *testing.T, body interface{}, attempts uint16) (*nsq.Message, *fakeDelegate) {
	var b []byte
	switch v := body.(type) {
	case string:
		b = []byte(v)
	default:
		var err error
		b, err = json.Marshal(v)
		require.NoError(t, err)
	}
	msg := nsq.NewMessage(nsq.MessageID{}, b)
	msg.Attempts = attempts
	d := &fakeDelegate{}
	msg.Delegate = d
	return msg, d
}

type fixture struct {
	queue    *Queue
	engine   *engine.Engine
	runner   *holdRunner
	producer *fakeProducer
	dedupe   *memoryDeduper

	mu   sync.Mutex
	pool string
}

func (f *fixture) appFiles() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pool
}

func (f *fixture) setPool(pool string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool = pool
}

func newFixture(t *testing.T) *fixture {
	conf := configure.Default()
	conf.Paths.Tmp = filepath.Join(t.TempDir(), "tmp")
	conf.Paths.AppFiles = t.TempDir()
	conf.Paths.Configurations = t.TempDir()

	st := store.NewStore(conf.Paths.Configurations)
	require.NoError(t, st.Save(store.NewConfiguration("conf1", []store.Application{
		{"app_A.csv", "jobs_A.csv", "stages_A.csv", "tasks_A.csv", "test_A.lua", "ConfigApp_A.txt", "2"},
	}), ""))

	f := &fixture{
		runner:   &holdRunner{hold: make(chan struct{})},
		producer: &fakeProducer{},
		dedupe:   &memoryDeduper{seen: map[string]bool{}},
		pool:     conf.Paths.AppFiles,
	}
	f.engine = engine.NewEngine(conf, f.runner)
	f.queue = NewQueue(conf.Nsq, f.engine, st, f.appFiles, f.dedupe)
	f.queue.SetProducer(f.producer)
	f.engine.AddHook(f.queue)
	return f
}

func (f *fixture) drain() {
	close(f.runner.hold)
	f.engine.Close()
}

func runMessage(requestID string) map[string]interface{} {
	return map[string]interface{}{
		"configuration-name": " conf1 ",
		"algorithms":         map[string]bool{"algorithm1": false, "algorithm2": true},
		"deadline":           100,
		"request-id":         requestID,
	}
}

func TestHandleMessageStartsSession(t *testing.T) {
	f := newFixture(t)
	msg, d := newMessage(t, runMessage("req-1"), 1)
	require.NoError(t, f.queue.HandleMessage(msg))
	assert.Equal(t, 1, d.finished)

	reports := f.producer.Messages()
	require.Len(t, reports, 1)
	assert.Equal(t, status.StateRunning, reports[0].Status)
	assert.Equal(t, "req-1", reports[0].RequestID)
	id := reports[0].SessionID
	assert.Equal(t, "conf1", session.Name(id))

	f.drain()
	reports = f.producer.Messages()
	require.Len(t, reports, 2)
	assert.Equal(t, id, reports[1].SessionID)
	assert.Equal(t, status.StateCompleted, reports[1].Status)
	assert.Equal(t, "req-1", reports[1].RequestID)
	assert.NotZero(t, reports[1].Timestamp)
}

func TestReportsFollowPoolChanges(t *testing.T) {
	f := newFixture(t)
	pool := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pool, "ConfigApp_A.txt"), []byte("Q26 4 2 1\n"), 0644))
	f.setPool(pool)

	msg, _ := newMessage(t, runMessage("req-1"), 1)
	require.NoError(t, f.queue.HandleMessage(msg))
	f.drain()

	reports := f.producer.Messages()
	require.Len(t, reports, 2)
	assert.Equal(t, status.StateCompleted, reports[1].Status)
	assert.Equal(t, 4, reports[1].TotalCores)
	assert.Equal(t, 2, reports[1].TotalVMs, "capacity comes from the new pool")
}

func TestImmediateCompletionKeepsRequestID(t *testing.T) {
	f := newFixture(t)
	close(f.runner.hold)
	for i := 0; i < 10; i++ {
		m := runMessage(fmt.Sprintf("req-%v", i))
		m["algorithms"] = map[string]bool{}
		msg, _ := newMessage(t, m, 1)
		require.NoError(t, f.queue.HandleMessage(msg))
	}
	f.engine.Close()

	reports := f.producer.Messages()
	require.Len(t, reports, 20)
	for _, r := range reports {
		assert.NotEmpty(t, r.RequestID, r.SessionID)
	}
}

func TestHandleMessageDuplicate(t *testing.T) {
	f := newFixture(t)
	defer f.drain()
	for i := 0; i < 2; i++ {
		msg, d := newMessage(t, runMessage("req-1"), 1)
		require.NoError(t, f.queue.HandleMessage(msg))
		assert.Equal(t, 1, d.finished)
	}
	assert.Len(t, f.producer.Messages(), 1)
}

func TestHandleMessageUnknownConfiguration(t *testing.T) {
	f := newFixture(t)
	defer f.drain()
	m := runMessage("req-2")
	m["configuration-name"] = "missing"
	msg, d := newMessage(t, m, 1)
	require.NoError(t, f.queue.HandleMessage(msg))
	assert.Equal(t, 1, d.finished)

	reports := f.producer.Messages()
	require.Len(t, reports, 1)
	assert.Equal(t, status.StateError, reports[0].Status)
	assert.Equal(t, "req-2", reports[0].RequestID)
	assert.Empty(t, reports[0].SessionID)
	assert.False(t, f.dedupe.seen["req-2"], "failed requests can be retried")
}

func TestHandleMessageMalformed(t *testing.T) {
	f := newFixture(t)
	defer f.drain()
	msg, d := newMessage(t, "{not json", 1)
	require.NoError(t, f.queue.HandleMessage(msg))
	assert.Equal(t, 1, d.finished)
	assert.Empty(t, f.producer.Messages())
}

func TestHandleMessageMaxAttempts(t *testing.T) {
	f := newFixture(t)
	defer f.drain()
	msg, d := newMessage(t, runMessage("req-3"), uint16(f.queue.conf.MaxAttempts)+1)
	assert.ErrorIs(t, f.queue.HandleMessage(msg), ErrMaxAttemptsExceeded)
	assert.Equal(t, 1, d.finished)
	reports := f.producer.Messages()
	require.Len(t, reports, 1)
	assert.Equal(t, status.StateError, reports[0].Status)
}

type fakeConn struct {
	values  map[string]int64
	expires map[string]int64
}

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	key := args[0].(string)
	switch cmd {
	case "INCR":
		c.values[key]++
		return c.values[key], nil
	case "EXPIRE":
		c.expires[key] = args[1].(int64)
		return int64(1), nil
	case "DEL":
		delete(c.values, key)
		return int64(1), nil
	}
	return nil, fmt.Errorf("unknown command %s", cmd)
}

func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Err() error { return nil }
func (c *fakeConn) Send(cmd string, args ...interface{}) error { return nil }
func (c *fakeConn) Flush() error { return nil }
func (c *fakeConn) Receive() (interface{}, error) { return nil, nil }

func TestRedisDeduper(t *testing.T) {
	conn := &fakeConn{values: map[string]int64{}, expires: map[string]int64{}}
	d := NewRedisDeduper(conn, "opt-deadline:", time.Hour)

	seen, err := d.Seen("req")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, int64(3600), conn.expires["opt-deadline:req"])

	seen, err = d.Seen("req")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, d.Forget("req"))
	seen, err = d.Seen("req")
	require.NoError(t, err)
	assert.False(t, seen)
}
