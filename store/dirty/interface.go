package dirty

// Source is the side of a tracker an uploader consumes: it yields dirty
// ranges, is advanced once per completed cycle and is invalidated wholesale
// when the destination is recreated.
type Source interface {
	NeedsUpload() bool
	First() (Range, bool)
	Next(prev Range) (Range, bool)
	Advance()
	MarkAllDirty()
}

var _ Source = (*Tracker)(nil)
