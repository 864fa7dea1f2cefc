package wirenet

import (
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

var pendingWritePool = &PendingWritePool{sp: sync.Pool{}, m: newPoolMetrics()}

type pendingWrite struct {
	buf *bytebufferpool.ByteBuffer // frame bytes to flush
	res chan error                 // receives the write outcome; capacity 1, fresh per acquire
}

type PendingWritePool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *PendingWritePool) acquire(buf *bytebufferpool.ByteBuffer) *pendingWrite {
	v := p.sp.Get()
	if v == nil {
		v = &pendingWrite{}
		atomic.AddUint32(&p.m.na, uint32(1))
	} else {
		atomic.AddUint32(&p.m.nr, uint32(1))
	}

	pw := v.(*pendingWrite)
	pw.buf = buf
	pw.res = make(chan error, 1)
	return pw
}

func (p *PendingWritePool) release(pw *pendingWrite) {
	pw.buf = nil
	pw.res = nil
	p.sp.Put(pw)
	atomic.AddUint32(&p.m.np, uint32(1))
}
