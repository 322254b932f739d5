package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/google/uuid"
)

var ErrRealmClosed = errors.New("client: realm closed the session")

// ProbeResult summarises one probe run.
type ProbeResult struct {
	SessionID        uuid.UUID
	SnapshotEntities int
	Updates          int
	MovesConfirmed   int
	SyncRTT          time.Duration
}

// Probe connects, walks the entity through moves positions waiting for each
// to be echoed in a world update, then measures one sync round trip.
// Progress is written to out.
func Probe(ctx context.Context, cfg Config, moves int, out io.Writer) (ProbeResult, error) {
	var res ProbeResult
	cl, err := Dial(ctx, cfg)
	if err != nil {
		return res, err
	}
	defer cl.Close()
	res.SessionID = cl.SessionID
	fmt.Fprintf(out, "connected session=%s\n", cl.SessionID)

	snapshot, err := cl.await(ctx, &res, func(op protocol.Operation) bool {
		_, ok := op.(protocol.ServerWorldUpdate)
		return ok
	})
	if err != nil {
		return res, err
	}
	res.SnapshotEntities = len(snapshot.(protocol.ServerWorldUpdate).Updates)
	fmt.Fprintf(out, "snapshot entities=%d\n", res.SnapshotEntities)

	for i := 0; i < moves; i++ {
		pos := probePosition(i, moves)
		if err := cl.Move(pos); err != nil {
			return res, err
		}
		if _, err := cl.await(ctx, &res, cl.positionIs(pos)); err != nil {
			return res, err
		}
		res.MovesConfirmed++
		fmt.Fprintf(out, "move %d/%d confirmed position=%s\n", i+1, moves, pos)
	}

	start := time.Now()
	if err := cl.Sync(); err != nil {
		return res, err
	}
	if _, err := cl.await(ctx, &res, func(op protocol.Operation) bool {
		_, ok := op.(protocol.ServerSync)
		return ok
	}); err != nil {
		return res, err
	}
	res.SyncRTT = time.Since(start)
	fmt.Fprintf(out, "sync rtt=%s updates=%d\n", res.SyncRTT, res.Updates)
	return res, nil
}

// await reads until match, counting world updates on the way.
func (c *Client) await(ctx context.Context, res *ProbeResult, match func(protocol.Operation) bool) (protocol.Operation, error) {
	for {
		op, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := op.(protocol.Disconnect); ok {
			return nil, ErrRealmClosed
		}
		if _, ok := op.(protocol.ServerWorldUpdate); ok {
			res.Updates++
		}
		if match(op) {
			return op, nil
		}
	}
}

func (c *Client) positionIs(pos protocol.Vec3) func(protocol.Operation) bool {
	want := protocol.Position(pos)
	return func(op protocol.Operation) bool {
		update, ok := op.(protocol.ServerWorldUpdate)
		if !ok {
			return false
		}
		for _, entity := range update.Updates {
			if entity.EntityID != c.SessionID {
				continue
			}
			for _, component := range entity.Components {
				if component == protocol.EntityComponent(want) {
					return true
				}
			}
		}
		return false
	}
}

// probePosition walks a unit circle, one step per move.
func probePosition(i, n int) protocol.Vec3 {
	angle := 2 * math.Pi * float64(i+1) / float64(max(n, 1))
	return protocol.Vec3{X: math.Cos(angle), Y: 0, Z: math.Sin(angle)}
}
