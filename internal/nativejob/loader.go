package nativejob

import (
	"fmt"
	"plugin"
)

// Load opens a compiled job binary as a Go plugin and resolves its four
// optional entry points by symbol name. A missing symbol is not an error —
// the caller receives a Binding with the corresponding field left nil and
// decides whether that's fatal for the role it's about to play (a
// coordinator process needs NewJobManager and NewCommitter; a worker
// process needs only NewWorker).
//
// Symbol names match the ABI the specification names in §6.1: Main,
// NewJobManager, NewWorker, NewCommitter. A real deployment's job binary
// is compiled with `go build -buildmode=plugin` exporting package-level
// functions under these names with the signatures in Binding.
func Load(path string) (*Binding, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nativejob: open %s: %w", path, err)
	}

	b := &Binding{}

	if sym, err := p.Lookup("Main"); err == nil {
		fn, ok := sym.(func([]string, func([]string) (int, []byte)) int)
		if !ok {
			return nil, fmt.Errorf("nativejob: %s: Main has unexpected signature", path)
		}
		b.Main = fn
	}

	if sym, err := p.Lookup("NewJobManager"); err == nil {
		fn, ok := sym.(func([]string, []byte, Metrics) (JobManager, error))
		if !ok {
			return nil, fmt.Errorf("nativejob: %s: NewJobManager has unexpected signature", path)
		}
		b.NewJobManager = fn
	}

	if sym, err := p.Lookup("NewWorker"); err == nil {
		fn, ok := sym.(func([]string, Metrics) (Worker, error))
		if !ok {
			return nil, fmt.Errorf("nativejob: %s: NewWorker has unexpected signature", path)
		}
		b.NewWorker = fn
	}

	if sym, err := p.Lookup("NewCommitter"); err == nil {
		fn, ok := sym.(func([]string, []byte, Metrics) (Committer, error))
		if !ok {
			return nil, fmt.Errorf("nativejob: %s: NewCommitter has unexpected signature", path)
		}
		b.NewCommitter = fn
	}

	return b, nil
}
