package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lcpu-club/optdeadline/session"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	mu       sync.Mutex
	objects  map[string]string
	failures map[string]int
}

func (f *fakePutter) FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[object] > 0 {
		f.failures[object]--
		return minio.UploadInfo{}, fmt.Errorf("connection reset")
	}
	b, err := os.ReadFile(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+object] = string(b)
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(b))}, nil
}

func writeSession(t *testing.T, l session.Layout, id string) {
	require.NoError(t, os.MkdirAll(l.Output(id), 0755))
	require.NoError(t, os.MkdirAll(l.Tmp(id), 0755))
	require.NoError(t, os.WriteFile(l.Started(id), []byte("1700000000.000000"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(l.Output(id), "result.txt"), []byte("90.5"), 0644))
}

func newTestPublisher(t *testing.T, putter *fakePutter) (*Publisher, session.Layout) {
	l := session.NewLayout(t.TempDir())
	p := NewPublisher(putter, "sessions")
	p.delay = time.Millisecond
	return p, l
}

func TestPublish(t *testing.T) {
	putter := &fakePutter{objects: map[string]string{}, failures: map[string]int{
		"run_c_x/output/result.txt": 2,
	}}
	p, l := newTestPublisher(t, putter)
	writeSession(t, l, "run_c_x")

	files, err := p.Files(l, "run_c_x")
	require.NoError(t, err)
	assert.Equal(t, []string{"output/result.txt", "started.txt"}, files)

	require.NoError(t, p.SessionCompleted(l, "run_c_x"))
	assert.Equal(t, map[string]string{
		"sessions/run_c_x/output/result.txt": "90.5",
		"sessions/run_c_x/started.txt":       "1700000000.000000",
	}, putter.objects)
}

func TestPublishGivesUp(t *testing.T) {
	putter := &fakePutter{objects: map[string]string{}, failures: map[string]int{
		"run_c_x/started.txt": 10,
	}}
	p, l := newTestPublisher(t, putter)
	writeSession(t, l, "run_c_x")

	err := p.Publish(context.Background(), l, "run_c_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_c_x/started.txt")
	assert.Contains(t, putter.objects, "sessions/run_c_x/output/result.txt")
}

func TestPublishInvalidSession(t *testing.T) {
	p, l := newTestPublisher(t, &fakePutter{objects: map[string]string{}})
	assert.ErrorIs(t, p.Publish(context.Background(), l, "../x"), session.ErrInvalidID)
	assert.Error(t, p.Publish(context.Background(), l, "run_missing_x"))
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "run_a_b/output/x.txt", ObjectName("run_a_b", filepath.Join("output", "x.txt")))
}
