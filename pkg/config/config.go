// Package config centralizes the tunables recognized across the runtime:
// timeouts, backoffs, rendezvous style, and process-role addressing. The
// field names and defaults mirror the global config variables the original
// pypits jm.py/tm.py scripts populated from argparse, kept here as typed,
// yaml-overridable structs instead of module globals.
package config

import "time"

// Announce selects the filesystem rendezvous style a worker uses to publish
// its listening endpoint. AnnounceFile (one file per worker under nodes/)
// is preferred; AnnounceCat (append a line to the shared nodes.txt) is kept
// only for interoperating with a fleet that still uses it, per the open
// question in the specification about bridging mixed deployments.
type Announce string

const (
	AnnounceFile Announce = "file"
	AnnounceCat  Announce = "cat"
)

// Verbosity mirrors the 0/1/2 -> error/info/debug mapping taken straight
// from the original --verbose flag.
type Verbosity int

const (
	VerbosityError Verbosity = 0
	VerbosityInfo  Verbosity = 1
	VerbosityDebug Verbosity = 2
)

// Default timeouts and backoffs. Names track the original def_* constants
// (def_heart_timeout, def_connection_timeout, ...) so a reader who has seen
// the Python runtime recognizes them immediately.
const (
	DefaultConnectionTimeout  = 5 * time.Second
	DefaultReceiveTimeout     = 30 * time.Second
	DefaultSendTimeout        = 30 * time.Second
	DefaultHeartbeatTimeout   = 10 * time.Second
	DefaultHeartbeatInterval  = 15 * time.Second
	DefaultIdleTimeout        = 60 * time.Second
	DefaultSendBackoff        = 1 * time.Second
	DefaultReceiveBackoff     = 1 * time.Second
	DefaultMetricBufferSize   = 64
	DefaultCoordinatorPort    = 6464
	DefaultWorkerPort         = 0 // 0 = let the Listener pick an ephemeral port
	DefaultWorkerOverfill     = 2
)

// Coordinator holds every option the Job Manager process reads at startup.
type Coordinator struct {
	JobID    string `yaml:"jobid"`
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	KillTMs  bool   `yaml:"killtms"`
	LogPath  string `yaml:"log"`
	CWD      string `yaml:"cwd"`
	Verbose  Verbosity `yaml:"verbose"`

	ConnectionTimeout time.Duration `yaml:"ctimeout"`
	ReceiveTimeout    time.Duration `yaml:"rtimeout"`
	SendTimeout       time.Duration `yaml:"stimeout"`
	HeartbeatTimeout  time.Duration `yaml:"htimeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat-interval"`

	SendBackoff    time.Duration `yaml:"sbackoff"`
	ReceiveBackoff time.Duration `yaml:"rbackoff"`

	MetricBuffer int    `yaml:"metric-buffer"`
	MetricsFile  string `yaml:"metrics-file"`
	MetricsPort  int    `yaml:"metrics-port"` // Prometheus /metrics listener; 0 disables it

	BinaryPath string `yaml:"binary"`
}

// Worker holds every option the Task Manager process reads at startup.
type Worker struct {
	JobID    string `yaml:"jobid"`
	Mode     string `yaml:"tmmode"` // "tcp" is the only mode implemented
	Addr     string `yaml:"tmaddr"` // bind address for the task server listener, as in the original tm.py
	Port     int    `yaml:"tmport"`
	CWD      string `yaml:"cwd"` // job working directory; holds nodes.txt/nodes/ for discovery rendezvous
	NumWorkers int  `yaml:"nw"`
	Overfill int    `yaml:"tm-overfill"`

	Announce     Announce `yaml:"announce"`
	AnnounceFile string   `yaml:"announce-file"`
	Hostname     string   `yaml:"hostname"`

	LogPath string    `yaml:"log"`
	Verbose Verbosity `yaml:"verbose"`

	ConnectionTimeout time.Duration `yaml:"ctimeout"`
	ReceiveTimeout    time.Duration `yaml:"rtimeout"`
	SendTimeout       time.Duration `yaml:"stimeout"`
	IdleTimeout       time.Duration `yaml:"timeout"`

	MetricBuffer int    `yaml:"metric-buffer"`
	BinaryPath   string `yaml:"binary"`
}

// DefaultCoordinator returns a Coordinator populated with the module's
// default timeouts, suitable as a base that CLI flags or a yaml file
// overlay on top of.
func DefaultCoordinator() Coordinator {
	return Coordinator{
		Port:              DefaultCoordinatorPort,
		ConnectionTimeout: DefaultConnectionTimeout,
		ReceiveTimeout:    DefaultReceiveTimeout,
		SendTimeout:       DefaultSendTimeout,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		SendBackoff:       DefaultSendBackoff,
		ReceiveBackoff:    DefaultReceiveBackoff,
		MetricBuffer:      DefaultMetricBufferSize,
	}
}

// DefaultWorker returns a Worker populated with the module's default
// timeouts and a worker count matching nw's original default (host CPU
// count); callers fill that in via runtime.NumCPU since config itself
// stays free of runtime probing.
func DefaultWorker() Worker {
	return Worker{
		Mode:              "tcp",
		Addr:              "0.0.0.0",
		Port:              DefaultWorkerPort,
		Overfill:          DefaultWorkerOverfill,
		Announce:          AnnounceFile,
		ConnectionTimeout: DefaultConnectionTimeout,
		ReceiveTimeout:    DefaultReceiveTimeout,
		SendTimeout:       DefaultSendTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MetricBuffer:      DefaultMetricBufferSize,
	}
}
