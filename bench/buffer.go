package bench

import (
	"bytes"
	"io"
	"math/rand"

	"github.com/enfiskutensykkel/cuda-rdma-bench/devmem"
)

// compareChunkSize bounds the host staging buffers used by Compare so that
// arbitrarily large segments never need a full host-side copy at once.
const compareChunkSize = 64 << 10

// RandomByte returns a pseudo-random byte value used to seed buffers before
// a transfer.
func RandomByte() byte {
	return byte(rand.Intn(256))
}

// FillRandom fills mem with a freshly chosen random byte and returns the
// byte it used.
func FillRandom(mem devmem.Memory) (byte, error) {
	b := RandomByte()
	if err := mem.Fill(b); err != nil {
		return 0, err
	}
	return b, nil
}

// ReadByte returns the first byte of mem.
func ReadByte(mem devmem.Memory) (byte, error) {
	var b [1]byte
	if err := mem.CopyToHost(b[:], 0); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Compare compares length bytes of local memory against remote, which is
// typically a mapped remote segment. It returns the length of the matching
// prefix rather than a boolean so that partial matches stay diagnosable;
// the buffers are equal iff the returned count equals length.
//
// The comparison goes through CopyToHost, so it works the same for host and
// device-resident local memory.
func Compare(local devmem.Memory, remote io.ReaderAt, length uint64) (uint64, error) {
	localChunk := make([]byte, compareChunkSize)
	remoteChunk := make([]byte, compareChunkSize)

	var matched uint64
	for matched < length {
		n := uint64(compareChunkSize)
		if length-matched < n {
			n = length - matched
		}

		if err := local.CopyToHost(localChunk[:n], matched); err != nil {
			return matched, err
		}
		if _, err := remote.ReadAt(remoteChunk[:n], int64(matched)); err != nil {
			return matched, err
		}

		if !bytes.Equal(localChunk[:n], remoteChunk[:n]) {
			for i := uint64(0); i < n; i++ {
				if localChunk[i] != remoteChunk[i] {
					return matched + i, nil
				}
			}
		}
		matched += n
	}
	return matched, nil
}
