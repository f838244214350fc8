package heap

import "sync/atomic"

// ReferenceType identifies the reference-strength category of a Reference.
type ReferenceType int

const (
	// RefSoft references are cleared under memory pressure, subject to a
	// pluggable staleness policy.
	RefSoft ReferenceType = iota
	// RefWeak references are cleared as soon as the referent is otherwise
	// unreachable.
	RefWeak
	// RefFinal references keep their referent alive one extra cycle so the
	// finalizer can run against an intact object.
	RefFinal
	// RefPhantom references are enqueued after finalization has settled and
	// never expose their referent.
	RefPhantom
)

// NumTypes is the number of reference categories.
const NumTypes = 4

// String returns the category name used in logs.
func (t ReferenceType) String() string {
	switch t {
	case RefSoft:
		return "SoftRef"
	case RefWeak:
		return "WeakRef"
	case RefFinal:
		return "FinalRef"
	case RefPhantom:
		return "PhantomRef"
	default:
		return "UnknownRef"
	}
}

// Reference is a reference object. Its three link fields are mutated only
// through the discovery and processing protocols:
//
//   - referent: the tracked object; nil once cleared.
//   - discovered: intrusive next pointer, owned by the processing engine
//     while the reference sits on a discovered list. A self-loop marks the
//     tail of a list; nil means "not discovered". After processing it chains
//     the pending list (nil-terminated).
//   - next: used only by the Final category; a self-loop marks "already
//     delivered to finalization", after which the reference must never be
//     rediscovered.
type Reference struct {
	typ        ReferenceType
	referent   atomic.Pointer[Object]
	discovered atomic.Pointer[Reference]
	next       atomic.Pointer[Reference]

	// timestamp is the soft-reference access stamp in milliseconds on the
	// engine's soft-ref clock. Only meaningful for RefSoft.
	timestamp atomic.Int64
}

// NewReference creates a reference of the given category tracking referent.
func NewReference(typ ReferenceType, referent *Object) *Reference {
	r := &Reference{typ: typ}
	r.referent.Store(referent)
	return r
}

// Type returns the reference category.
func (r *Reference) Type() ReferenceType { return r.typ }

// Referent returns the tracked object, or nil if cleared.
func (r *Reference) Referent() *Object { return r.referent.Load() }

// ClearReferent nulls the referent field.
func (r *Reference) ClearReferent() { r.referent.Store(nil) }

// ReferentField exposes the referent slot so a keep-alive visitor can treat
// it as a root during tracing.
func (r *Reference) ReferentField() *atomic.Pointer[Object] { return &r.referent }

// Discovered returns the intrusive discovered-list link.
func (r *Reference) Discovered() *Reference { return r.discovered.Load() }

// SetDiscovered stores the discovered link unconditionally. Used by
// single-threaded discovery and by list surgery during processing, where the
// engine exclusively owns the field.
func (r *Reference) SetDiscovered(next *Reference) { r.discovered.Store(next) }

// CompareAndSwapDiscovered links the reference into a discovered list only
// if it is not yet linked. Exactly one racing discoverer wins; losers must
// treat the reference as already discovered.
func (r *Reference) CompareAndSwapDiscovered(next *Reference) bool {
	return r.discovered.CompareAndSwap(nil, next)
}

// Next returns the Final-delivery link.
func (r *Reference) Next() *Reference { return r.next.Load() }

// SelfLoopNext marks a Final reference as delivered to finalization.
func (r *Reference) SelfLoopNext() { r.next.Store(r) }

// Timestamp returns the soft-reference access stamp in clock milliseconds.
func (r *Reference) Timestamp() int64 { return r.timestamp.Load() }

// Touch stamps the reference with the current clock value, as a mutator
// does on every soft-reference access.
func (r *Reference) Touch(clockMillis int64) { r.timestamp.Store(clockMillis) }
