package codec

import (
	"fmt"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/frame"
)

// World update payload layout (little-endian):
//
//	[4B entity count]
//	  [16B entity uuid][4B component count]
//	    [1B component tag][tag-specific body]
//
// Component bodies carry no length prefix, so an unknown tag cannot be
// skipped and rejects the whole frame.

func encodeServerWorldUpdate(op protocol.Operation, dst []byte) []byte {
	data := mustOperation[protocol.ServerWorldUpdate](op)
	dst = appendU32(dst, uint32(len(data.Updates)))
	for _, entity := range data.Updates {
		dst = append(dst, entity.EntityID[:]...)
		dst = appendU32(dst, uint32(len(entity.Components)))
		for _, component := range entity.Components {
			dst = appendComponent(dst, component)
		}
	}
	return dst
}

func appendComponent(dst []byte, component protocol.EntityComponent) []byte {
	switch c := component.(type) {
	case protocol.Health:
		dst = append(dst, byte(protocol.TagHealth))
		return appendU64(dst, uint64(c))
	case protocol.Position:
		dst = append(dst, byte(protocol.TagPosition))
		return appendVec3(dst, protocol.Vec3(c))
	default:
		panic(fmt.Sprintf("codec: no encoding for component %T", component))
	}
}

func decodeServerWorldUpdate(h frame.Header, payload []byte) (protocol.Operation, error) {
	if h.Size < worldHead {
		return nil, protocol.ErrBadData
	}
	r := newPayloadReader(h.Size, payload)
	if err := r.need(worldHead); err != nil {
		return nil, err
	}
	count := r.u32()

	updates := make([]protocol.EntityUpdate, 0, min(int(count), r.remaining()/entityHead))
	for i := uint32(0); i < count; i++ {
		if err := r.need(entityHead); err != nil {
			return nil, err
		}
		entity := protocol.EntityUpdate{EntityID: r.uuid()}
		components := r.u32()
		if components > 0 {
			entity.Components = make([]protocol.EntityComponent, 0, min(int(components), r.remaining()/(tagLen+8)))
		}
		for j := uint32(0); j < components; j++ {
			component, err := decodeComponent(r)
			if err != nil {
				return nil, err
			}
			entity.Components = append(entity.Components, component)
		}
		updates = append(updates, entity)
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return protocol.ServerWorldUpdate{Updates: updates}, nil
}

func decodeComponent(r *payloadReader) (protocol.EntityComponent, error) {
	if err := r.need(tagLen); err != nil {
		return nil, err
	}
	tag := protocol.ComponentTag(r.buf[r.pos])
	bodyLen, ok := tag.BodyLen()
	if !ok {
		return nil, fmt.Errorf("%w: unknown component tag %02X", protocol.ErrBadData, uint8(tag))
	}
	if err := r.need(tagLen + bodyLen); err != nil {
		return nil, err
	}
	r.u8()
	switch tag {
	case protocol.TagHealth:
		return protocol.Health(r.u64()), nil
	default:
		return protocol.Position(r.vec3()), nil
	}
}

// EncodedWorldUpdateLen returns the payload size of update without encoding it.
func EncodedWorldUpdateLen(update protocol.ServerWorldUpdate) int {
	n := worldHead
	for _, entity := range update.Updates {
		n += entityLen(entity)
	}
	return n
}

func entityLen(entity protocol.EntityUpdate) int {
	n := entityHead
	for _, component := range entity.Components {
		n += componentLen(component)
	}
	return n
}

func componentLen(component protocol.EntityComponent) int {
	bodyLen, _ := component.Tag().BodyLen()
	return tagLen + bodyLen
}

// SplitWorldUpdate divides update into parts whose payloads each fit within
// maxPayload bytes. Entities are kept whole where possible; an entity that
// does not fit on its own is split into several partial updates for the same
// id, preserving component order.
func SplitWorldUpdate(update protocol.ServerWorldUpdate, maxPayload int) ([]protocol.ServerWorldUpdate, error) {
	if maxPayload <= 0 || maxPayload > frame.MaxPayloadLen {
		maxPayload = frame.MaxPayloadLen
	}
	// One entity carrying its largest possible component must always fit.
	if floor := worldHead + entityHead + tagLen + vec3Len; maxPayload < floor {
		return nil, fmt.Errorf("codec: split limit %d below minimum %d", maxPayload, floor)
	}
	if EncodedWorldUpdateLen(update) <= maxPayload {
		return []protocol.ServerWorldUpdate{update}, nil
	}

	parts := make([]protocol.ServerWorldUpdate, 0, 2)
	current := protocol.ServerWorldUpdate{}
	size := worldHead
	flush := func() {
		if len(current.Updates) == 0 {
			return
		}
		parts = append(parts, current)
		current = protocol.ServerWorldUpdate{}
		size = worldHead
	}

	for _, entity := range update.Updates {
		n := entityLen(entity)
		if size+n <= maxPayload {
			current.Updates = append(current.Updates, entity)
			size += n
			continue
		}
		flush()
		if worldHead+n <= maxPayload {
			current.Updates = append(current.Updates, entity)
			size += n
			continue
		}
		partial := protocol.EntityUpdate{EntityID: entity.EntityID}
		partialSize := worldHead + entityHead
		for _, component := range entity.Components {
			c := componentLen(component)
			if partialSize+c > maxPayload {
				parts = append(parts, protocol.ServerWorldUpdate{Updates: []protocol.EntityUpdate{partial}})
				partial = protocol.EntityUpdate{EntityID: entity.EntityID}
				partialSize = worldHead + entityHead
			}
			partial.Components = append(partial.Components, component)
			partialSize += c
		}
		current.Updates = append(current.Updates, partial)
		size = partialSize
	}
	flush()
	return parts, nil
}
