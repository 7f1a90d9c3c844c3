package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadError reports a directory that could not be read or evaluated as one
// CUE instance.
type LoadError struct {
	Dir    string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Dir, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Dir, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load evaluates every .cue file in dir as one instance and compiles it.
func Load(dir string) (*Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Dir: dir, Reason: "config directory not accessible", Err: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{Dir: dir, Reason: "not a directory"}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Dir: dir, Reason: "scanning directory", Err: err}
	}
	if len(files) == 0 {
		return nil, &LoadError{Dir: dir, Reason: "no CUE files found"}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Dir: dir, Reason: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Dir: dir, Reason: "loading CUE files", Err: inst.Err}
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}
	return Compile(v)
}

// FindCUEFiles returns the .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.cue"))
}
