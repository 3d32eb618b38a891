package recordbin

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// BagMode is the mode conversion a bag delta asks the receiver to perform
// before applying its changes.
type BagMode byte

const (
	BagModeKeep     BagMode = 0
	BagModeEmbedded BagMode = 1
	BagModeTree     BagMode = 2
)

func (m BagMode) String() string {
	switch m {
	case BagModeKeep:
		return "keep"
	case BagModeEmbedded:
		return "embedded"
	case BagModeTree:
		return "tree"
	default:
		return fmt.Sprintf("invalid bag mode %d", int(m))
	}
}

// BagChange adds (OpCreated) or removes (OpRemoved) one reference.
type BagChange struct {
	Op  Op
	RID RID
}

// BagDelta is the replication delta of a bag: a flat sequence of additions
// and removals, optionally preceded by a mode conversion. HasID reports
// whether ID correlates the delta with a bag known to the receiver only by
// its temporary id.
type BagDelta struct {
	ID      uuid.UUID
	HasID   bool
	Mode    BagMode
	Changes []BagChange
}

var noBagID = uuid.Max

func (bd *BagDelta) Add(rid RID) *BagDelta {
	bd.Changes = append(bd.Changes, BagChange{OpCreated, rid})
	return bd
}

func (bd *BagDelta) Remove(rid RID) *BagDelta {
	bd.Changes = append(bd.Changes, BagChange{OpRemoved, rid})
	return bd
}

// SerializeBagDelta encodes a bag delta:
//
//	bagdelta = uuid:16 mode:byte count:varint (tag:byte link)*
//
// An all-0xFF uuid means none.
func (dc *DeltaCodec) SerializeBagDelta(bd *BagDelta) ([]byte, error) {
	if bd == nil {
		return nil, errors.New("cannot serialize a nil bag delta")
	}
	b := getBuffer()
	defer releaseBuffer(b)
	if err := dc.writeBagDelta(b, bd, valueCtx{linked: Any}); err != nil {
		return nil, err
	}
	return detach(b), nil
}

// ApplyBagDelta decodes a bag delta and applies it to bag. With a nil bag the
// delta is only validated.
func (dc *DeltaCodec) ApplyBagDelta(data []byte, bag *RidBag) error {
	bd, err := dc.DecodeBagDelta(data)
	if err != nil || bag == nil {
		return err
	}
	return bd.ApplyTo(bag)
}

func (dc *DeltaCodec) DecodeBagDelta(data []byte) (*BagDelta, error) {
	b := NewBuffer(data)
	bd, err := readBagDelta(b)
	if err != nil {
		return nil, err
	}
	if b.Remaining() != 0 {
		return nil, dataErrf(b.Buf, b.Off, nil, "%d trailing bytes after bag delta", b.Remaining())
	}
	return bd, nil
}

// writeBagDelta resolves temporary references before writing them.
func (dc *DeltaCodec) writeBagDelta(b *Buffer, bd *BagDelta, ctx valueCtx) error {
	if bd.HasID {
		writeUUID(b, bd.ID)
	} else {
		writeUUID(b, noBagID)
	}
	if bd.Mode > BagModeTree {
		return fmt.Errorf("invalid bag mode %d", int(bd.Mode))
	}
	b.WriteByte(byte(bd.Mode))
	WriteVarint(b, int64(len(bd.Changes)))
	for _, c := range bd.Changes {
		if c.Op != OpCreated && c.Op != OpRemoved {
			return fmt.Errorf("bag change cannot be %v", c.Op)
		}
		if c.RID.IsNull() {
			return &TypeError{Field: ctx.field, Type: Link, Value: c.RID, Msg: "bag delta cannot carry a null link"}
		}
		rid, err := dc.l.resolveLink(c.RID, ctx)
		if err != nil {
			return err
		}
		b.WriteByte(byte(c.Op))
		writeLink(b, rid)
	}
	return nil
}

func readBagDelta(b *Buffer) (*BagDelta, error) {
	id, err := readUUID(b)
	if err != nil {
		return nil, err
	}
	bd := &BagDelta{}
	if id != noBagID {
		bd.ID, bd.HasID = id, true
	}
	modeOff := b.Off
	m, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	bd.Mode = BagMode(m)
	if bd.Mode > BagModeTree {
		return nil, dataErrf(b.Buf, modeOff, nil, "invalid bag mode %d", m)
	}
	n, err := readLen(b, 3)
	if err != nil {
		return nil, err
	}
	bd.Changes = make([]BagChange, 0, n)
	for range n {
		tagOff := b.Off
		c, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		op := Op(c)
		if op != OpCreated && op != OpRemoved {
			return nil, dataErrf(b.Buf, tagOff, nil, "invalid bag delta tag %d", c)
		}
		rid, err := readLink(b)
		if err != nil {
			return nil, err
		}
		bd.Changes = append(bd.Changes, BagChange{op, rid})
	}
	return bd, nil
}

// ApplyTo performs the mode conversion and then replays the changes. A
// conversion to embedded mode starts from the bag's pending additions; the
// sender is expected to include every reference the bag should contain.
func (bd *BagDelta) ApplyTo(bag *RidBag) error {
	if bd.HasID {
		if _, ok := bag.TemporaryID(); !ok {
			bag.SetTemporaryID(bd.ID)
		}
	}
	switch bd.Mode {
	case BagModeEmbedded:
		bag.ConvertToEmbedded(nil)
	case BagModeTree:
		bag.ConvertToTree()
	}
	for _, c := range bd.Changes {
		switch c.Op {
		case OpCreated:
			bag.Add(c.RID)
		case OpRemoved:
			bag.Remove(c.RID)
		default:
			return fmt.Errorf("bag change cannot be %v", c.Op)
		}
	}
	return nil
}
