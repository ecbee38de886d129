package handlers

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog/log"
)

// requestBufferPool provides reusable byte buffers for reading request
// bodies. Crawl and search bodies are small.
var requestBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// getBuffer retrieves a request buffer from the pool.
func getBuffer() *bytes.Buffer {
	v := requestBufferPool.Get()
	buf, ok := v.(*bytes.Buffer)
	if !ok {
		log.Warn().Interface("got_type", v).Msg("Unexpected type from request buffer pool")
		return bytes.NewBuffer(make([]byte, 0, 1024))
	}
	return buf
}

// putBuffer returns a request buffer to the pool after resetting it.
func putBuffer(buf *bytes.Buffer) {
	buf.Reset()
	requestBufferPool.Put(buf)
}

// maxPooledResponse keeps one huge product page from pinning a large
// buffer in the pool forever.
const maxPooledResponse = 256 << 10

// responseBufferPool provides reusable byte buffers for JSON encoding.
// Detail responses with many images and reviews run to tens of KB.
var responseBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 16384))
	},
}

// getResponseBuffer retrieves a response buffer from the pool.
func getResponseBuffer() *bytes.Buffer {
	v := responseBufferPool.Get()
	buf, ok := v.(*bytes.Buffer)
	if !ok {
		log.Warn().Interface("got_type", v).Msg("Unexpected type from response buffer pool")
		return bytes.NewBuffer(make([]byte, 0, 16384))
	}
	return buf
}

// putResponseBuffer returns a response buffer to the pool after resetting it.
func putResponseBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledResponse {
		return
	}
	buf.Reset()
	responseBufferPool.Put(buf)
}
