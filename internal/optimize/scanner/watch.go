package scanner

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch performs an initial Scan, sends its results on out, then watches
// root for newly created files, sending a ModelArtifact for each recognized
// one as it appears. Watch blocks until ctx is canceled or the watcher
// fails, closing out on return.
func Watch(ctx context.Context, root string, out chan<- ModelArtifact) error {
	defer close(out)

	initial, err := Scan(root)
	if err != nil {
		return err
	}
	for _, a := range initial {
		select {
		case out <- a:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			format, ok := classify(event.Name)
			if !ok {
				continue
			}
			artifact := ModelArtifact{
				Path:         event.Name,
				Format:       format,
				Quantization: quantizationHint(event.Name),
			}
			select {
			case out <- artifact:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
