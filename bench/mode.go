package bench

import (
	"fmt"
	"strings"

	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

// Mode selects the transfer technique for a benchmark run.
type Mode int

const (
	// ModeNone is the zero value and selects nothing.
	ModeNone Mode = iota
	// ModeDMAPush uses DMA to push data to the remote host.
	ModeDMAPush
	// ModeDMAGlobalPush is ModeDMAPush with globally ordered delivery.
	ModeDMAGlobalPush
	// ModeDMAPull uses DMA to pull data from the remote host.
	ModeDMAPull
	// ModeDMAGlobalPull is ModeDMAPull with globally ordered delivery.
	ModeDMAGlobalPull
	// ModeProgrammedWrite writes data to the remote host with programmed I/O.
	ModeProgrammedWrite
	// ModeProgrammedCopyToRemote copies data to the remote host with
	// programmed I/O.
	ModeProgrammedCopyToRemote
	// ModeProgrammedCopyFromRemote copies data from the remote host with
	// programmed I/O.
	ModeProgrammedCopyFromRemote
	// ModeWriteToRemote writes data with a plain copy into a mapping of the
	// remote segment.
	ModeWriteToRemote
	// ModeReadFromRemote reads data with a plain copy out of a mapping of
	// the remote segment.
	ModeReadFromRemote
	// ModeInterruptSend sends data through data interrupts.
	ModeInterruptSend
)

var modeNames = map[Mode]string{
	ModeNone:                     "none",
	ModeDMAPush:                  "dma-push",
	ModeDMAGlobalPush:            "dma-global-push",
	ModeDMAPull:                  "dma-pull",
	ModeDMAGlobalPull:            "dma-global-pull",
	ModeProgrammedWrite:          "pio-write",
	ModeProgrammedCopyToRemote:   "pio-copy-to",
	ModeProgrammedCopyFromRemote: "pio-copy-from",
	ModeWriteToRemote:            "write",
	ModeReadFromRemote:           "read",
	ModeInterruptSend:            "intr-send",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// IsDMA reports whether the mode drives the DMA engine.
func (m Mode) IsDMA() bool {
	switch m {
	case ModeDMAPush, ModeDMAGlobalPush, ModeDMAPull, ModeDMAGlobalPull:
		return true
	default:
		return false
	}
}

// ParseMode resolves a mode name as accepted on the command line.
func ParseMode(name string) (Mode, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for m, s := range modeNames {
		if s == want {
			return m, nil
		}
	}
	return ModeNone, fmt.Errorf("rdmabench: unknown benchmark mode %q", name)
}

// technique is the execution path a mode resolves to. The global and pull
// variants share the DMA path and differ only in transfer flags; keeping the
// mapping explicit avoids the selection depending on case ordering.
type technique int

const (
	techNone technique = iota
	techDMA
	techPIOWrite
	techPIORead
	techMapWrite
	techMapRead
	techUnsupported
)

func (m Mode) resolve() (technique, transport.Flag) {
	switch m {
	case ModeDMAPush:
		return techDMA, 0
	case ModeDMAGlobalPush:
		return techDMA, transport.FlagGlobal
	case ModeDMAPull:
		return techDMA, transport.FlagRead
	case ModeDMAGlobalPull:
		return techDMA, transport.FlagRead | transport.FlagGlobal
	case ModeProgrammedWrite, ModeProgrammedCopyToRemote:
		return techPIOWrite, 0
	case ModeProgrammedCopyFromRemote:
		return techPIORead, 0
	case ModeWriteToRemote:
		return techMapWrite, 0
	case ModeReadFromRemote:
		return techMapRead, 0
	case ModeInterruptSend:
		return techUnsupported, 0
	default:
		return techNone, 0
	}
}
