package stream

import (
	"io"
	"iter"
	"strings"
)

// ChunkSize is the read size used by Lines.
const ChunkSize = 4096

// MaxFragment caps the bytes held while waiting for a newline. When output
// runs longer without one, only the most recent MaxFragment bytes are kept.
const MaxFragment = 64 << 10

// Assembler turns raw output chunks into complete lines. It holds back the
// trailing fragment until its newline arrives, so a URL split across two
// chunks is never seen half-formed. The zero value is ready to use.
type Assembler struct {
	fragment string
}

// Feed appends chunk to the held fragment and returns every line completed
// by it, in order, without the newline. The last split segment (possibly
// empty) becomes the new fragment.
func (a *Assembler) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	buf := a.fragment + string(chunk)
	parts := strings.Split(buf, "\n")
	a.fragment = parts[len(parts)-1]
	if n := len(a.fragment); n > MaxFragment {
		a.fragment = strings.Clone(a.fragment[n-MaxFragment:])
	}
	if len(parts) == 1 {
		return nil
	}
	return parts[:len(parts)-1]
}

// Pending returns the fragment still waiting for a newline.
func (a *Assembler) Pending() string { return a.fragment }

// Lines returns a lazy sequence of complete lines read from r. Each call
// uses its own Assembler, so a new subprocess starts with an empty fragment.
// A fragment left over at EOF is dropped. Any read error, EOF included,
// ends the sequence.
func Lines(r io.Reader) iter.Seq[string] {
	return func(yield func(string) bool) {
		var a Assembler
		buf := make([]byte, ChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, line := range a.Feed(buf[:n]) {
					if !yield(line) {
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}
}
