package transcribe

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ChannelResponses holds the recognizer output for both sides of a call.
type ChannelResponses struct {
	Left  *Response
	Right *Response
}

// TranscribeChannels transcribes the left and right channel files
// concurrently. It returns only when both have finished; the first failure
// cancels the other request and is returned.
func TranscribeChannels(ctx context.Context, p Provider, leftPath, rightPath string, opts TranscribeOpts) (*ChannelResponses, error) {
	var out ChannelResponses
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := p.Transcribe(gctx, leftPath, opts)
		if err != nil {
			return fmt.Errorf("transcribe left channel: %w", err)
		}
		out.Left = resp
		return nil
	})
	g.Go(func() error {
		resp, err := p.Transcribe(gctx, rightPath, opts)
		if err != nil {
			return fmt.Errorf("transcribe right channel: %w", err)
		}
		out.Right = resp
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
