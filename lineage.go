package threadtree

import (
	"runtime"
	"strconv"
	"sync"
)

// Lineage records where a worker came from: the stack of the goroutine that spawned it, plus the
// Lineage of that goroutine's own worker. Following Parent walks back up the spawn tree to the
// coordinator.
type Lineage struct {
	// Worker is the worker that this Lineage describes.
	Worker WorkerID
	// Spawner is the worker whose goroutine produced Frames.
	Spawner WorkerID
	Frames  []Frame
	Parent  *Lineage
}

type Frame struct {
	Function string
	File     string
	Line     int
}

// captureLineage collects the current goroutine's stack on behalf of the newly spawned worker.
func captureLineage(worker, spawner WorkerID, parent *Lineage, skip uint) *Lineage {
	frames := getFrames(skip + 1) // skip captureLineage itself
	return &Lineage{Worker: worker, Spawner: spawner, Frames: frames, Parent: parent}
}

// Depth returns how many spawns separate the worker from the coordinator
func (l *Lineage) Depth() int {
	d := 0
	for ; l != nil; l = l.Parent {
		d += 1
	}
	return d
}

// Path returns the chain of spawners, starting with the coordinator and ending with the worker the
// Lineage describes.
func (l *Lineage) Path() []WorkerID {
	if l == nil {
		return nil
	}

	path := make([]WorkerID, l.Depth()+1)
	i := len(path) - 1
	path[i] = l.Worker
	for ; l != nil; l = l.Parent {
		i -= 1
		path[i] = l.Spawner
	}
	return path
}

func (l *Lineage) String() string {
	var buf []byte

	for l != nil {
		buf = append(buf, l.Worker.String()...)
		buf = append(buf, " spawned by "...)
		buf = append(buf, l.Spawner.String()...)
		buf = append(buf, ":\n"...)

		if len(l.Frames) == 0 {
			buf = append(buf, "<empty stack>\n"...)
		}
		for _, f := range l.Frames {
			buf = appendFrame(buf, f)
		}

		l = l.Parent
	}

	return string(buf)
}

func appendFrame(buf []byte, f Frame) []byte {
	if f.Function == "" {
		buf = append(buf, "<unknown function>"...)
	} else {
		buf = append(buf, f.Function...)
		buf = append(buf, "(...)"...)
	}
	buf = append(buf, "\n\t"...)

	if f.File == "" {
		buf = append(buf, "<unknown file>"...)
	} else {
		buf = append(buf, f.File...)
		if f.Line != 0 {
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(f.Line), 10)
		}
	}

	return append(buf, '\n')
}

var pcBufPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, 64)
		return &buf
	},
}

func putPCBuffer(buf *[]uintptr) {
	if len(*buf) < 1024 {
		pcBufPool.Put(buf)
	}
}

func getFrames(skip uint) []Frame {
	skip += 2 // skip getFrames and runtime.Callers

	pcBuf := pcBufPool.Get().(*[]uintptr)
	defer putPCBuffer(pcBuf)

	// grow the buffer until the whole stack fits
	var pc []uintptr
	for {
		n := runtime.Callers(0, *pcBuf)
		if n == 0 {
			panic("runtime.Callers(0, ...) returned zero")
		}

		if n < len(*pcBuf) {
			pc = (*pcBuf)[:n]
			break
		}
		*pcBuf = make([]uintptr, 2*len(*pcBuf))
	}

	iter := runtime.CallersFrames(pc)
	var frames []Frame
	more := true
	for more {
		var frame runtime.Frame
		frame, more = iter.Next()

		if skip > 0 {
			skip -= 1
			continue
		}

		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
	}

	return frames
}
