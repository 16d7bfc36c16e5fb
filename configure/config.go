package configure

import (
	"time"
)

type Configure struct {
	Listen string           `yaml:"listen" toml:"listen" json:"listen"`
	Log    *LogConfigure    `yaml:"log" toml:"log" json:"log"`
	Paths  *PathsConfigure  `yaml:"paths" toml:"paths" json:"paths"`
	Solver *SolverConfigure `yaml:"solver" toml:"solver" json:"solver"`
	Status *StatusConfigure `yaml:"status" toml:"status" json:"status"`
	Nsq    *NsqConfigure    `yaml:"nsq" toml:"nsq" json:"nsq"`
	Redis  *RedisConfigure  `yaml:"redis" toml:"redis" json:"redis"`
	MinIO  *MinIOConfigure  `yaml:"minio" toml:"minio" json:"minio"`
	Remote *RemoteConfigure `yaml:"remote" toml:"remote" json:"remote"`
}

type LogConfigure struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// PathsConfigure holds every directory and binary the service touches.
type PathsConfigure struct {
	AppFiles       string `yaml:"app-files" toml:"app_files" json:"app-files"`
	Tmp            string `yaml:"tmp" toml:"tmp" json:"tmp"`
	Dagsim         string `yaml:"dagsim" toml:"dagsim" json:"dagsim"`
	OptICBinary    string `yaml:"opt-ic-binary" toml:"opt_ic_binary" json:"opt-ic-binary"`
	Configurations string `yaml:"configurations" toml:"configurations" json:"configurations"`
	OptDeadline    string `yaml:"opt-deadline" toml:"opt_deadline" json:"opt-deadline"`
}

type SolverConfigure struct {
	User            string                    `yaml:"user" toml:"user" json:"user"`
	CgroupsBasePath string                    `yaml:"cgroups-base-path" toml:"cgroups_base_path" json:"cgroups-base-path"`
	ResourceControl *ResourceControlConfigure `yaml:"resource-control" toml:"resource_control" json:"resource-control"`
}

type ResourceControlConfigure struct {
	Memory int64 `yaml:"memory" toml:"memory" json:"memory"` // in MB
	CPU    int64 `yaml:"cpu" toml:"cpu" json:"cpu"`          // 100 for one cpu, 200 for two...
}

type StatusConfigure struct {
	WatchInterval time.Duration `yaml:"watch-interval" toml:"watch_interval" json:"watch-interval"`
}

type NsqConfigure struct {
	Enabled      bool                 `yaml:"enabled" toml:"enabled" json:"enabled"`
	Nsqd         *NsqdConfigure       `yaml:"nsqd" toml:"nsqd" json:"nsqd"`
	NsqLookupd   *NsqLookupdConfigure `yaml:"nsqlookupd" toml:"nsqlookupd" json:"nsqlookupd"`
	Topics       *NsqTopicsConfigure  `yaml:"topics" toml:"topics" json:"topics"`
	Channel      string               `yaml:"channel" toml:"channel" json:"channel"`
	AuthSecret   string               `yaml:"auth-secret" toml:"auth_secret" json:"auth-secret"`
	MaxAttempts  int                  `yaml:"max-attempts" toml:"max_attempts" json:"max-attempts"`
	RequeueDelay time.Duration        `yaml:"requeue-delay" toml:"requeue_delay" json:"requeue-delay"`
}

type NsqdConfigure struct {
	Address string `yaml:"address" toml:"address" json:"address"`
}

type NsqLookupdConfigure struct {
	Address []string `yaml:"address" toml:"address" json:"address"`
}

type NsqTopicsConfigure struct {
	Run    string `yaml:"run" toml:"run" json:"run"`
	Report string `yaml:"report" toml:"report" json:"report"`
}

type RedisConfigure struct {
	Address   string        `yaml:"address" toml:"address" json:"address"`
	Password  string        `yaml:"password" toml:"password" json:"password"`
	Database  int           `yaml:"database" toml:"database" json:"database"`
	KeepAlive time.Duration `yaml:"keep-alive" toml:"keep_alive" json:"keep-alive"`
	Prefix    string        `yaml:"prefix" toml:"prefix" json:"prefix"`
	Expire    time.Duration `yaml:"expire" toml:"expire" json:"expire"`
}

type MinIOConfigure struct {
	Enabled     bool                       `yaml:"enabled" toml:"enabled" json:"enabled"`
	Endpoint    string                     `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	Credentials *MinIOCredentialsConfigure `yaml:"credentials" toml:"credentials" json:"credentials"`
	SSL         bool                       `yaml:"ssl" toml:"ssl" json:"ssl"`
	Bucket      string                     `yaml:"bucket" toml:"bucket" json:"bucket"`
}

type MinIOCredentialsConfigure struct {
	AccessKey string `yaml:"access-key" toml:"access_key" json:"access-key"`
	SecretKey string `yaml:"secret-key" toml:"secret_key" json:"secret-key"`
}

type RemoteConfigure struct {
	Address []string      `yaml:"address" toml:"address" json:"address"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
}
