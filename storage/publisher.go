package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ObjectPutter is the part of *minio.Client the publisher uses.
type ObjectPutter interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads finished session directories to an object store, one
// object per file under <session id>/.
type Publisher struct {
	client   ObjectPutter
	bucket   string
	attempts uint
	delay    time.Duration
	timeout  time.Duration
}

func NewPublisher(client ObjectPutter, bucket string) *Publisher {
	return &Publisher{
		client:   client,
		bucket:   bucket,
		attempts: 3,
		delay:    time.Second,
		timeout:  10 * time.Minute,
	}
}

// ConnectMinIO builds a publisher from the minio section of conf.
func ConnectMinIO(conf *configure.Configure) (*Publisher, error) {
	mc, err := minio.New(conf.MinIO.Endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(
			conf.MinIO.Credentials.AccessKey, conf.MinIO.Credentials.SecretKey, "",
		),
		Secure: conf.MinIO.SSL,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	log.WithField("endpoint", conf.MinIO.Endpoint).Info("Connected to MinIO Server")
	return NewPublisher(mc, conf.MinIO.Bucket), nil
}

// ObjectName is the key of file rel (relative to the session directory).
func ObjectName(id string, rel string) string {
	return path.Join(id, filepath.ToSlash(rel))
}

// Files lists the regular files of a session directory, relative to it.
func (p *Publisher) Files(l session.Layout, id string) ([]string, error) {
	root := l.Dir(id)
	files := []string{}
	err := filepath.Walk(root, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, name)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Strings(files)
	return files, nil
}

// Publish uploads every file of the session. Each upload is retried; the
// failures that remain are returned together.
func (p *Publisher) Publish(ctx context.Context, l session.Layout, id string) error {
	if err := session.ValidateID(id); err != nil {
		return err
	}
	files, err := p.Files(l, id)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, rel := range files {
		object := ObjectName(id, rel)
		src := filepath.Join(l.Dir(id), rel)
		err := retry.Do(
			func() error {
				_, err := p.client.FPutObject(ctx, p.bucket, object, src, minio.PutObjectOptions{
					ContentType: "text/plain",
				})
				return err
			},
			retry.Attempts(p.attempts),
			retry.Delay(p.delay),
			retry.LastErrorOnly(true),
			retry.Context(ctx),
		)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "failed to upload %s", object))
		}
	}
	if result.ErrorOrNil() == nil {
		log.WithField("session", id).Infof("uploaded %v files to %s", len(files), p.bucket)
	}
	return result.ErrorOrNil()
}

func (p *Publisher) SessionCompleted(l session.Layout, id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.Publish(ctx, l, id)
}
