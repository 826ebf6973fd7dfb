package viewdb

import "sync"

// keyBytesPool recycles the scratch buffer used while building row keys, so
// assembling a key doesn't grow a fresh buffer each time; rowKey still
// returns an exact-size copy of each key it builds.
var keyBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func releaseKeyBytes(b []byte) {
	keyBytesPool.Put(b[:0])
}
