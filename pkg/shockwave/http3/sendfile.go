package http3

import (
	"errors"
	"io"

	"github.com/yourusername/shockwave/pkg/shockwave"
)

// sendChunkSize bounds how much file data is read into a pooled buffer
// per Transport.Send call. There is no kernel zero-copy path for
// encrypted QUIC payloads (sendfile(2) operates on plaintext sockets),
// so this is a chunked, pooled-buffer read-and-write loop driven
// entirely through the Transport contract. The chunk size matches
// shockwave.BufferSize64KB,
// the pool's largest size class ("64KB - large payloads"), so every
// chunk is a pool hit rather than a one-off allocation.
const sendChunkSize = shockwave.BufferSize64KB

// sendFile streams length bytes from r onto ref in sendChunkSize pieces,
// marking fin on the final Transport.Send call.
func sendFile(tr Transport, ref StreamRef, r io.Reader, length int64, fin bool) error {
	if length < 0 {
		return errors.New("http3: negative sendfile length")
	}
	if length == 0 {
		return tr.Send(ref, nil, fin)
	}

	buf := shockwave.GetBuffer(sendChunkSize)
	defer shockwave.PutBuffer(buf)

	remaining := length
	for remaining > 0 {
		chunk := buf
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}

		n, err := io.ReadFull(r, chunk)
		if err != nil && err != io.ErrUnexpectedEOF {
			return err
		}
		remaining -= int64(n)

		last := remaining == 0
		if err := tr.Send(ref, chunk[:n], last && fin); err != nil {
			return err
		}
	}
	return nil
}
