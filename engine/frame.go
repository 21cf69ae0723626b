package engine

import "time"

const (
	// MaxSlots is the number of voice slots, i.e. the maximum number of
	// simultaneously sounding contacts. Each slot maps 1:1 to an output
	// channel for the lifetime of the process.
	MaxSlots = 5

	// MaxContacts is how many raw contacts a sample can carry. Contacts
	// beyond the slot capacity still participate in centroid and spread but
	// get no role and therefore no voice.
	MaxContacts = 10
)

// EventFlags are per-slot discrete event bits for the current sample.
type EventFlags uint8

const (
	EventBegan EventFlags = 1 << iota
	EventEnded
	EventImpact
	EventPrimary
)

type (
	// Contact is one raw touch point as delivered by the input transport.
	Contact struct {
		ID       int64
		X, Y     float32
		Pressure float32 // raw, device units
		Size     float32 // raw contact patch size, device units
	}

	// Sample is one input callback worth of touch data. The transport copies
	// the fields it needs into a Sample immediately and never hands the
	// engine its own objects; zero contacts with NumEnded > 0 is a pure lift
	// sample.
	Sample struct {
		Time        time.Duration      // monotonic, since engine start
		Contacts    [MaxContacts]Contact
		NumContacts int
		Began       uint16             // bit i set: Contacts[i] began this sample
		Ended       [MaxContacts]int64 // contact IDs lifted this sample
		NumEnded    int
	}

	// Slot is one fixed voice slot of the TouchFrame. ID is -1 while empty;
	// the slot index is stable for the lifetime of a contact and an ID never
	// occupies two slots at once.
	Slot struct {
		ID          int64
		X, Y        float32
		Force       float32 // normalized 0..1
		RawPressure float32
		RawSize     float32
		Events      EventFlags
	}

	// TouchFrame is the fixed-capacity, slot-indexed snapshot consumed by the
	// rest of the pipeline. Overflow contacts are kept position-only for
	// geometry.
	TouchFrame struct {
		Slots       [MaxSlots]Slot
		OverflowX   [MaxContacts - MaxSlots]float32
		OverflowY   [MaxContacts - MaxSlots]float32
		NumOverflow int
	}
)

// ContactBegan reports whether contact i of the sample began this sample.
func (s *Sample) ContactBegan(i int) bool { return s.Began&(1<<uint(i)) != 0 }

// Reset empties every slot. Used at startup and by all-notes-off.
func (f *TouchFrame) Reset() {
	for i := range f.Slots {
		f.Slots[i] = Slot{ID: -1}
	}
	f.NumOverflow = 0
}

// ActiveSlots counts slots currently bound to a contact.
func (f *TouchFrame) ActiveSlots() int {
	n := 0
	for i := range f.Slots {
		if f.Slots[i].ID >= 0 {
			n++
		}
	}
	return n
}

// slotFor returns the slot index bound to id, or -1.
func (f *TouchFrame) slotFor(id int64) int {
	for i := range f.Slots {
		if f.Slots[i].ID == id {
			return i
		}
	}
	return -1
}

// freeSlot returns the lowest empty slot index, or -1 when all are taken.
func (f *TouchFrame) freeSlot() int {
	for i := range f.Slots {
		if f.Slots[i].ID < 0 {
			return i
		}
	}
	return -1
}
