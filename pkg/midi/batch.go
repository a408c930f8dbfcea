package midi

import (
	"context"
	"os"
	"runtime"

	"github.com/remeh/sizedwaitgroup"
)

// Result is the outcome of decoding one file of a batch.
type Result struct {
	Path string
	File *File
	Err  error
}

// DecodeAll reads and decodes every named file, running at most workers
// decodes at once (the number of CPUs when workers is not positive).
// Results come back in input order; a failed file only fails its own
// entry. Once ctx is done, files not yet started report ctx.Err().
func DecodeAll(ctx context.Context, paths []string, workers int, opts Options) []Result {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	d := NewDecoder(opts)
	results := make([]Result, len(paths))

	swg := sizedwaitgroup.New(workers)
	for i, path := range paths {
		if err := swg.AddWithContext(ctx); err != nil {
			results[i] = Result{Path: path, Err: err}
			continue
		}
		go func(i int, path string) {
			defer swg.Done()
			results[i] = decodePath(ctx, d, path)
		}(i, path)
	}
	swg.Wait()

	return results
}

func decodePath(ctx context.Context, d *Decoder, path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path, Err: err}
	}
	f, err := d.DecodeContext(ctx, data)
	return Result{Path: path, File: f, Err: err}
}
