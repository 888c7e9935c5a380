package speech

import (
	"context"
	"sync"
)

// ModelCache holds the process-wide transcription model handle. The first
// Get performs the expensive load exactly once; concurrent first callers
// wait for that load instead of starting their own. The handle lives for
// the process lifetime, there is no eviction or reload.
//
// Transcribe additionally serializes model invocations, since the model is
// not documented as safe for concurrent use.
type ModelCache struct {
	load func() (Transcriber, error)

	once  sync.Once
	model Transcriber
	err   error

	invokeMu sync.Mutex
}

func NewModelCache(load func() (Transcriber, error)) *ModelCache {
	return &ModelCache{load: load}
}

// Get returns the shared model handle, loading it on first use.
func (c *ModelCache) Get() (Transcriber, error) {
	c.once.Do(func() {
		c.model, c.err = c.load()
	})
	return c.model, c.err
}

// Transcribe runs one whole-file transcription under the model's exclusive
// scope.
func (c *ModelCache) Transcribe(ctx context.Context, audioPath string) ([]RawSegment, error) {
	model, err := c.Get()
	if err != nil {
		return nil, err
	}
	c.invokeMu.Lock()
	defer c.invokeMu.Unlock()
	return model.Transcribe(ctx, audioPath)
}
