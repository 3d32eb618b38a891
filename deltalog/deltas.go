package deltalog

import (
	"fmt"

	"github.com/andreyvit/recordbin"
)

// AppendDelta encodes a document delta and adds it to the current batch.
func (l *Log) AppendDelta(dc *recordbin.DeltaCodec, d *recordbin.Delta) error {
	data, err := dc.SerializeDelta(d)
	if err != nil {
		return err
	}
	return l.Append(KindDocument, data)
}

// AppendBagDelta encodes a bag delta and adds it to the current batch.
func (l *Log) AppendBagDelta(dc *recordbin.DeltaCodec, bd *recordbin.BagDelta) error {
	data, err := dc.SerializeBagDelta(bd)
	if err != nil {
		return err
	}
	return l.Append(KindBag, data)
}

// Decode returns the *recordbin.Delta or *recordbin.BagDelta held by the
// entry.
func (e Entry) Decode(dc *recordbin.DeltaCodec) (any, error) {
	switch e.Kind {
	case KindDocument:
		d, err := dc.DecodeDelta(e.Data)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		return d, nil
	case KindBag:
		bd, err := dc.DecodeBagDelta(e.Data)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		return bd, nil
	default:
		return nil, fmt.Errorf("entry %d: unknown kind %v", e.ID, e.Kind)
	}
}
