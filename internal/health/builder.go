package health

import "time"

type categoryState int

const (
	stateCollected categoryState = iota
	stateAbsent
	stateFailed
)

// Builder accumulates one poll's results. It is not safe for concurrent
// use; callers join their category workers first.
type Builder struct {
	rec      Record
	readings map[Category][]Reading
	state    map[Category]categoryState
}

func NewBuilder(deviceID string) *Builder {
	return &Builder{
		rec:      Record{deviceID: deviceID, system: UnknownSystem()},
		readings: make(map[Category][]Reading),
		state:    make(map[Category]categoryState),
	}
}

func (b *Builder) SetPollID(id string) *Builder {
	b.rec.pollID = id
	return b
}

func (b *Builder) SetIdentity(vendor, model, serial string) *Builder {
	b.rec.vendor, b.rec.model, b.rec.serial = vendor, model, serial
	return b
}

// SetSystem attaches the device-level state. Invalid severities become
// Unknown.
func (b *Builder) SetSystem(s System) *Builder {
	b.rec.system = s.normalized()
	return b
}

func (b *Builder) SetVariant(name string) *Builder {
	b.rec.variant = name
	return b
}

// AddReadings appends readings for c in the given order. Each reading's
// Category is forced to c and invalid severities become Unknown.
func (b *Builder) AddReadings(c Category, readings []Reading) *Builder {
	for _, r := range readings {
		r = r.clone()
		r.Category = c
		if !r.Severity.Valid() {
			r.Severity = Unknown
		}
		b.readings[c] = append(b.readings[c], r)
	}
	if _, ok := b.state[c]; !ok {
		b.state[c] = stateCollected
	}

	return b
}

// MarkAbsent records that the endpoint does not implement c. This is not
// a failure and does not make the record partial.
func (b *Builder) MarkAbsent(c Category, detail string) *Builder {
	b.state[c] = stateAbsent
	b.Note(NoteCategoryAbsent, c, detail)

	return b
}

// MarkFailed records that c could not be collected. Any readings already
// added for c are dropped.
func (b *Builder) MarkFailed(c Category, kind NoteKind, detail string) *Builder {
	b.state[c] = stateFailed
	delete(b.readings, c)
	b.Note(kind, c, detail)

	return b
}

func (b *Builder) Note(kind NoteKind, c Category, detail string) *Builder {
	b.rec.notes = append(b.rec.notes, Note{Kind: kind, Category: c, Detail: detail})
	return b
}

// Finalize computes the rollup and stamps collectedAt. Per category the
// status is the max of its readings, or Unknown when it has none. Overall
// is the max over every reading plus Unknown for each failed category; a
// record without readings is Unknown. Absent categories only affect their
// own status; a category that was never reported counts as Unknown.
func (b *Builder) Finalize(collectedAt time.Time) Record {
	rec := b.rec
	rec.status = make(map[Category]Severity, len(Categories()))
	rec.readings = nil

	overall := OK
	hasReadings := false

	for _, c := range Categories() {
		rs := b.readings[c]
		if len(rs) == 0 {
			rec.status[c] = Unknown
		} else {
			sev := OK
			for _, r := range rs {
				sev = Max(sev, r.Severity)
			}
			rec.status[c] = sev
			overall = Max(overall, sev)
			hasReadings = true
		}
		rec.readings = append(rec.readings, rs...)

		state, seen := b.state[c]
		switch {
		case seen && state == stateFailed:
			rec.partial = true
			overall = Max(overall, Unknown)
		case !seen:
			overall = Max(overall, Unknown)
		}
	}

	if !hasReadings {
		overall = Max(overall, Unknown)
	}

	rec.overall = overall
	rec.collectedAt = collectedAt
	rec.notes = append([]Note(nil), b.rec.notes...)

	return rec
}
