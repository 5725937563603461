package proxy

import (
	"context"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

const copyBufferSize = 32 * 1024

var copyBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufferSize)
		return &b
	},
}

// CopyBidirectional shuttles bytes between left and right until either
// direction finishes (EOF or error). Both connections are closed exactly
// once as soon as the first direction ends, which unblocks the other;
// cancelling ctx has the same effect.
//
// The returned error is the first copy failure, which for the losing
// direction is often net.ErrClosed. Callers log it; it never propagates past
// the connection handler.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group

	g.Go(func() error {
		err := copyPooled(left, right)
		closeBoth()
		return err
	})

	g.Go(func() error {
		err := copyPooled(right, left)
		closeBoth()
		return err
	})

	return g.Wait()
}

func copyPooled(dst io.Writer, src io.Reader) error {
	buf := copyBuffers.Get().(*[]byte)
	defer copyBuffers.Put(buf)

	_, err := io.CopyBuffer(dst, src, *buf)
	return err
}
