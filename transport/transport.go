// Package transport reads touch samples from an external source and turns
// them into engine samples. The wire format is a line protocol so that any
// touch-capable frontend (or a test fixture) can feed the instrument over a
// pipe or a TCP connection:
//
//	<micros> [id,x,y,pressure,size]... [-id]...
//
// One line per input callback. The first field is the sample timestamp in
// microseconds since the stream started. Each comma tuple is one live
// contact; a bare -id marks a contact lifted this sample. Lines starting
// with # and blank lines are skipped.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tactum/tactum/engine"
)

// Source delivers touch samples one at a time. Next blocks until a sample is
// available and returns io.EOF when the stream ends.
type Source interface {
	Next(smp *engine.Sample) error
}

// Reader parses the line protocol from r. It tracks which contact IDs were
// live on the previous line so it can flag begins itself; the wire format
// only marks ends explicitly.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	live    map[int64]bool
	seen    map[int64]bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
		live:    make(map[int64]bool),
		seen:    make(map[int64]bool),
	}
}

// Next parses the next non-empty line into smp. Malformed lines are
// reported with their line number and skipped by calling Next again.
func (r *Reader) Next(smp *engine.Sample) error {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := r.parseLine(text, smp); err != nil {
			return fmt.Errorf("line %d: %w", r.line, err)
		}
		return nil
	}
	if err := r.scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (r *Reader) parseLine(text string, smp *engine.Sample) error {
	*smp = engine.Sample{}
	fields := strings.Fields(text)
	micros, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", fields[0], err)
	}
	smp.Time = time.Duration(micros) * time.Microsecond

	clear(r.seen)
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "-") {
			id, err := strconv.ParseInt(f[1:], 10, 64)
			if err != nil {
				return fmt.Errorf("ended contact %q: %w", f, err)
			}
			if smp.NumEnded < engine.MaxContacts {
				smp.Ended[smp.NumEnded] = id
				smp.NumEnded++
			}
			delete(r.live, id)
			continue
		}
		var c engine.Contact
		if err := parseContact(f, &c); err != nil {
			return err
		}
		if smp.NumContacts >= engine.MaxContacts {
			continue
		}
		i := smp.NumContacts
		smp.Contacts[i] = c
		smp.NumContacts++
		r.seen[c.ID] = true
		if !r.live[c.ID] {
			smp.Began |= 1 << uint(i)
			r.live[c.ID] = true
		}
	}
	// contacts that silently vanished count as lifted too
	for id := range r.live {
		if !r.seen[id] && smp.NumEnded < engine.MaxContacts {
			smp.Ended[smp.NumEnded] = id
			smp.NumEnded++
			delete(r.live, id)
		}
	}
	return nil
}

func parseContact(f string, c *engine.Contact) error {
	parts := strings.Split(f, ",")
	if len(parts) != 5 {
		return fmt.Errorf("contact %q: want id,x,y,pressure,size", f)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return fmt.Errorf("contact id %q: %w", parts[0], err)
	}
	c.ID = id
	vals := [4]float32{}
	for i, p := range parts[1:] {
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return fmt.Errorf("contact field %q: %w", p, err)
		}
		vals[i] = float32(v)
	}
	c.X, c.Y, c.Pressure, c.Size = vals[0], vals[1], vals[2], vals[3]
	return nil
}
