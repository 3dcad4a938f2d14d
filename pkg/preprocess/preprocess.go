// Package preprocess applies ordered, named preprocessing steps to content
// files before atomization. A file that fails any step is dropped from the
// corpus; the corpus build continues.
package preprocess

import (
	"context"
	"fmt"
	"sync"
)

var DebugLog func(string, ...interface{})

// PreprocessingError reports that a single content file failed a preprocessing
// step. It drops that file, never the whole corpus.
type PreprocessingError struct {
	Step   string
	Path   string
	Reason string
}

func (e *PreprocessingError) Error() string {
	return fmt.Sprintf("preprocessor %s rejected %s: %s", e.Step, e.Path, e.Reason)
}

// Func is a pure preprocessing step.
type Func func(text string) (string, error)

// Step is a named preprocessing step resolved from a corpus configuration.
type Step struct {
	Name string
	Fn   Func
}

// File is one raw content file entering the pipeline.
type File struct {
	Path string
	Text string
}

// Dropped records a file removed from the corpus and why.
type Dropped struct {
	Path string
	Err  error
}

// Result aggregates a pipeline run. Dropped files are reported as a summary,
// not raised individually.
type Result struct {
	Kept    []File
	Dropped []Dropped
}

// Resolve maps configured preprocessor names to steps, in declared order.
// An unknown name is a configuration mistake and fails the whole build.
func Resolve(names []string) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		fn, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown preprocessor %q (known: %s)", name, knownNames())
		}
		steps = append(steps, Step{Name: name, Fn: fn})
	}
	return steps, nil
}

// RunFile applies steps to one file in declared order.
func RunFile(file File, steps []Step) (File, error) {
	text := file.Text
	for _, step := range steps {
		out, err := step.Fn(text)
		if err != nil {
			return File{}, &PreprocessingError{Step: step.Name, Path: file.Path, Reason: err.Error()}
		}
		text = out
	}
	return File{Path: file.Path, Text: text}, nil
}

// Run preprocesses files in parallel with the given number of workers. Steps
// for a single file run in the exact declared sequence; files are independent
// and carry no shared state. Output order matches input order.
func Run(ctx context.Context, files []File, steps []Step, workers int) Result {
	if workers < 1 {
		workers = 1
	}

	type outcome struct {
		file File
		err  error
		done bool
	}

	outcomes := make([]outcome, len(files))
	jobs := make(chan int)

	wg := &sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				file, err := RunFile(files[i], steps)
				outcomes[i] = outcome{file: file, err: err, done: true}
			}
		}()
	}

sendLoop:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break sendLoop
		}
	}
	close(jobs)
	wg.Wait()

	result := Result{}
	for i, o := range outcomes {
		if !o.done {
			continue
		}
		if o.err != nil {
			if DebugLog != nil {
				DebugLog("dropping content file: %v", o.err)
			}
			result.Dropped = append(result.Dropped, Dropped{Path: files[i].Path, Err: o.err})
			continue
		}
		result.Kept = append(result.Kept, o.file)
	}
	return result
}
