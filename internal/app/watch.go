package app

import (
	"context"
	"log"
	"time"
)

// watch polls the source and runs the pipeline when the depth changes.
//
// Loop logic:
// 1. Read a frame every Interval
// 2. Compare its depth against the previous frame
// 3. Skip unchanged scenes so a static table is processed once
// 4. Run the pipeline on changed scenes; a failed run does not stop the loop
func (a *App) watch(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := a.source.ReadFrame()
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}

			changed, percent := a.change.Detect(frame)
			if !changed {
				continue
			}
			log.Printf("Scene changed (%.1f%% of depth pixels)", percent)

			out, err := a.Process(ctx, frame, "watch")
			if err != nil {
				log.Printf("Pipeline run failed: %v", err)
				continue
			}
			log.Printf("Run %s: %d grasps", out.RunID, len(out.Result.Payload.Grasps))
		}
	}
}
