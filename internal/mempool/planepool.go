package mempool

import (
	"sync"
)

// Sized pools for []uint8 and []bool pixel planes to reduce allocations
// when rasterizing and thresholding multi-page documents.

var (
	bytePools sync.Map // key: size class (int), value: *sync.Pool
	boolPools sync.Map // key: size class (int), value: *sync.Pool
)

// sizeClass rounds n up to the next 1024 step to reduce churn.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

// GetByte retrieves a zeroed []uint8 buffer of at least n elements from
// the pool. The returned slice has length n but may have larger
// capacity. The caller must return it via PutByte when done.
func GetByte(n int) []uint8 {
	cls := sizeClass(n)
	pAny, _ := bytePools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]uint8, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		buf := make([]uint8, cls)
		return buf[:n]
	}
	buf, ok := p.Get().([]uint8)
	if !ok || cap(buf) < cls {
		buf = make([]uint8, cls)
	} else {
		buf = buf[:cap(buf)]
	}
	// Reused planes carry stale pixels
	for i := range buf[:n] {
		buf[i] = 0
	}
	return buf[:n]
}

// PutByte returns a buffer to the pool. It is safe to pass a nil slice.
func PutByte(buf []uint8) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	pAny, _ := bytePools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]uint8, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return
	}
	p.Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetBool retrieves a zeroed []bool buffer of at least n elements from
// the pool. The returned slice has length n but may have larger
// capacity. The caller must return it via PutBool when done.
func GetBool(n int) []bool {
	cls := sizeClass(n)
	pAny, _ := boolPools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]bool, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		buf := make([]bool, cls)
		return buf[:n]
	}
	buf, ok := p.Get().([]bool)
	if !ok || cap(buf) < cls {
		buf = make([]bool, cls)
	} else {
		buf = buf[:cap(buf)]
	}
	for i := range buf[:n] {
		buf[i] = false
	}
	return buf[:n]
}

// PutBool returns a buffer to the pool. It is safe to pass a nil slice.
func PutBool(buf []bool) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	pAny, _ := boolPools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]bool, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return
	}
	p.Put(buf[:cap(buf)]) //nolint:staticcheck
}
