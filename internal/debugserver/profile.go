package debugserver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
)

// Profiler writes CPU and heap profiles of one process run to files.
type Profiler struct {
	CPUProfile  string
	HeapProfile string

	cpuFile *os.File
}

// Start begins CPU profiling if a CPU profile path is set.
func (p *Profiler) Start() error {
	if p.CPUProfile == "" {
		return nil
	}
	f, err := create(p.CPUProfile)
	if err != nil {
		return fmt.Errorf("failed to create CPU profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to start CPU profiling: %w", err)
	}
	p.cpuFile = f
	return nil
}

// Stop ends CPU profiling and writes the heap profile.
func (p *Profiler) Stop() error {
	var errs []error

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		}
		p.cpuFile = nil
	}

	if p.HeapProfile != "" {
		f, err := create(p.HeapProfile)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create heap profile file: %w", err))
		} else {
			if err := pprof.WriteHeapProfile(f); err != nil {
				errs = append(errs, fmt.Errorf("failed to write heap profile: %w", err))
			}
			f.Close()
		}
	}

	return errors.Join(errs...)
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}
